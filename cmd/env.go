package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pacificworks/licensing-portal/internal/analysis"
	"github.com/pacificworks/licensing-portal/internal/backend"
	"github.com/pacificworks/licensing-portal/internal/model"
	"github.com/pacificworks/licensing-portal/internal/store"
	"github.com/pacificworks/licensing-portal/pkg/agentrt"
	"github.com/pacificworks/licensing-portal/pkg/genai"
)

// portalEnv holds the initialized store and analysis service needed by the
// serve/analyze/factsheets commands.
type portalEnv struct {
	Store    store.Store
	Analysis *analysis.Service
}

// Close releases resources held by the environment.
func (pe *portalEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initEnv sets up the store, runs migrations, selects the text-generation
// backend, and builds the analysis service. Callers should defer env.Close().
func initEnv(ctx context.Context) (*portalEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	policy := analysis.DefaultPolicy()
	if cfg.Analysis.PolicyPath != "" {
		policy, err = analysis.LoadPolicy(cfg.Analysis.PolicyPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	svc := analysis.NewService(initBackend(), st, analysis.Options{
		StepTimeout: time.Duration(cfg.Analysis.StepTimeoutSecs) * time.Second,
		MaxTokens:   cfg.Analysis.MaxTokens,
		Policy:      policy,
	})

	return &portalEnv{Store: st, Analysis: svc}, nil
}

// initStore creates the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initBackend selects the text-generation provider. Returns nil when the
// selected provider has no credentials; the analysis service then produces
// the manual-review fallback instead of failing requests.
func initBackend() backend.TextGeneration {
	switch cfg.Analysis.Backend {
	case "agent":
		if cfg.Agent.Key == "" {
			zap.L().Warn("PORTAL_AGENT_KEY not set, analysis disabled")
			return nil
		}
		opts := []agentrt.Option{
			agentrt.WithPollInterval(time.Duration(cfg.Agent.PollIntervalSecs) * time.Second),
		}
		if cfg.Agent.BaseURL != "" {
			opts = append(opts, agentrt.WithBaseURL(cfg.Agent.BaseURL))
		}
		if cfg.Agent.AgentID != "" {
			opts = append(opts, agentrt.WithAgentID(cfg.Agent.AgentID))
		}
		return backend.NewAgentRuntime(agentrt.NewClient(cfg.Agent.Key, opts...))
	default:
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("PORTAL_ANTHROPIC_KEY not set, analysis disabled")
			return nil
		}
		return backend.NewGenerative(genai.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Analysis.MaxTokens)
	}
}

// loadFactSheet resolves the fact sheet an application joins to, if any.
func loadFactSheet(ctx context.Context, st store.Store, accountNumber string) (*model.EmployerFactSheet, error) {
	if accountNumber == "" {
		return nil, nil
	}
	return st.GetFactSheet(ctx, accountNumber)
}
