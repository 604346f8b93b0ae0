package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <application-id>",
	Short: "Run AI risk analysis for one application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		app, err := env.Store.GetApplication(ctx, args[0])
		if err != nil {
			return err
		}

		sheet, err := loadFactSheet(ctx, env.Store, app.AccountNumber())
		if err != nil {
			return err
		}
		if sheet == nil {
			zap.L().Info("no fact sheet match", zap.String("account_number", app.AccountNumber()))
		}

		result, err := env.Analysis.Analyze(ctx, app, sheet)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
