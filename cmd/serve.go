package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pacificworks/licensing-portal/internal/analysis"
	"github.com/pacificworks/licensing-portal/internal/model"
	"github.com/pacificworks/licensing-portal/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the licensing admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown. Analyses already dispatched get a grace window
		// to persist their results.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *portalEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/applications", handleListApplications(env))
		r.Post("/applications", handleCreateApplication(env))
		r.Get("/applications/{id}", handleGetApplication(env))
		r.Patch("/applications/{id}/status", handleUpdateStatus(env))
		r.Post("/applications/{id}/analyze", handleAnalyze(env))
		r.Get("/applications/{id}/analysis", handleGetAnalysis(env))

		r.Get("/fact-sheets", handleListFactSheets(env))
		r.Post("/fact-sheets", handleImportFactSheets(env))
		r.Get("/fact-sheets/{employerID}", handleGetFactSheet(env))
	})

	return r
}

func handleListApplications(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ApplicationFilter{
			Status: model.ApplicationStatus(r.URL.Query().Get("status")),
		}
		apps, err := env.Store.ListApplications(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if apps == nil {
			apps = []model.LicenseApplication{}
		}
		writeJSON(w, http.StatusOK, apps)
	}
}

func handleCreateApplication(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var app model.LicenseApplication
		if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode application"))
			return
		}
		if app.CompanyName == "" {
			writeError(w, http.StatusBadRequest, eris.New("companyName is required"))
			return
		}

		created, err := env.Store.CreateApplication(r.Context(), &app)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetApplication(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := env.Store.GetApplication(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}

func handleUpdateStatus(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status     model.ApplicationStatus `json:"status"`
			AdminNotes string                  `json:"adminNotes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode status update"))
			return
		}
		if req.Status == "" {
			writeError(w, http.StatusBadRequest, eris.New("status is required"))
			return
		}

		id := chi.URLParam(r, "id")
		if err := env.Store.UpdateApplicationStatus(r.Context(), id, req.Status, req.AdminNotes); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
	}
}

// handleAnalyze dispatches the three-step analysis asynchronously and
// returns 202; the result lands in the store under the application's
// analysis key and is fetched via GET .../analysis.
func handleAnalyze(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		app, err := env.Store.GetApplication(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		sheet, err := loadFactSheet(r.Context(), env.Store, app.AccountNumber())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			result, err := env.Analysis.Analyze(ctx, app, sheet)
			if err != nil {
				zap.L().Error("analysis dispatch failed",
					zap.String("application_id", app.ID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("analysis dispatched",
				zap.String("application_id", app.ID),
				zap.String("risk_score", string(result.RiskScore)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":        "accepted",
			"applicationId": id,
		})
	}
}

func handleGetAnalysis(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := env.Store.LoadAnalysis(r.Context(), analysis.AnalysisKey(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, eris.Errorf("no analysis for application %s", id))
			return
		}
		// Stored records may carry older field naming; normalize on
		// every view so the response is always the canonical shape.
		writeJSON(w, http.StatusOK, analysis.Normalize(doc))
	}
}

func handleListFactSheets(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sheets, err := env.Store.ListFactSheets(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if sheets == nil {
			sheets = []model.EmployerFactSheet{}
		}
		writeJSON(w, http.StatusOK, sheets)
	}
}

func handleImportFactSheets(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sheets []model.EmployerFactSheet
		if err := json.NewDecoder(r.Body).Decode(&sheets); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode fact sheets"))
			return
		}

		n, err := env.Store.UpsertFactSheets(r.Context(), sheets)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"imported": n})
	}
}

func handleGetFactSheet(env *portalEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		employerID := chi.URLParam(r, "employerID")
		sheet, err := env.Store.GetFactSheet(r.Context(), employerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if sheet == nil {
			writeError(w, http.StatusNotFound, eris.Errorf("no fact sheet for employer %s", employerID))
			return
		}
		writeJSON(w, http.StatusOK, sheet)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
