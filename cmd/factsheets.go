package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pacificworks/licensing-portal/internal/model"
)

var factsheetsCmd = &cobra.Command{
	Use:   "factsheets",
	Short: "Manage the employer fact sheet registry",
}

var factsheetsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import a registry extract (JSON array of fact sheets)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		var sheets []model.EmployerFactSheet
		if err := json.Unmarshal(data, &sheets); err != nil {
			return eris.Wrap(err, "parse fact sheets")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertFactSheets(ctx, sheets)
		if err != nil {
			return err
		}

		zap.L().Info("fact sheets imported", zap.Int("count", n), zap.String("file", args[0]))
		return nil
	},
}

var factsheetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fact sheets in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sheets, err := env.Store.ListFactSheets(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "EMPLOYER ID\tLEGAL NAME\tSTATUS\tOVERDUE")
		for _, s := range sheets {
			fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\n", s.EmployerID, s.LegalName, s.ActiveStatus, s.OverdueBalance)
		}
		return nil
	},
}

func init() {
	factsheetsCmd.AddCommand(factsheetsImportCmd)
	factsheetsCmd.AddCommand(factsheetsListCmd)
	rootCmd.AddCommand(factsheetsCmd)
}
