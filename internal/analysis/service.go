// Package analysis implements the AI risk-analysis pipeline: prompt
// construction, concurrent backend invocation, response extraction and
// repair, shape normalization, assembly, and schema validation.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pacificworks/licensing-portal/internal/backend"
	"github.com/pacificworks/licensing-portal/internal/model"
	"github.com/pacificworks/licensing-portal/internal/resilience"
)

// ResultStore persists assembled analysis results.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, key string, result model.AIAnalysisResult) error
}

// AnalysisKey derives the deterministic storage key for an application's
// analysis result.
func AnalysisKey(applicationID string) string {
	return "analysis_" + applicationID
}

// Options tunes the analysis service.
type Options struct {
	// StepTimeout bounds each backend call. Default 60s.
	StepTimeout time.Duration

	// MaxTokens caps each step's response length. Default 4096.
	MaxTokens int64

	// Policy holds the licensing thresholds embedded into prompts.
	Policy PolicyConfig
}

// Service runs the three-step analysis pipeline against a single
// text-generation backend selected at construction.
type Service struct {
	backend backend.TextGeneration
	store   ResultStore
	opts    Options
}

// NewService creates an analysis service. store may be nil when the caller
// handles persistence itself; backend may be nil when the provider is not
// configured, in which case Analyze returns the unavailable fallback.
func NewService(b backend.TextGeneration, store ResultStore, opts Options) *Service {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = backend.DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if len(opts.Policy.TestAccountMarkers) == 0 {
		opts.Policy = DefaultPolicy()
	}
	return &Service{backend: b, store: store, opts: opts}
}

// Analyze runs the fact, policy, and web steps concurrently, assembles
// their outputs, validates the merged result, and persists it. Step
// failures are isolated into failed-step traces; the only errors returned
// are environment failures that prevent dispatching any step at all.
func (s *Service) Analyze(ctx context.Context, app *model.LicenseApplication, sheet *model.EmployerFactSheet) (*model.AIAnalysisResult, error) {
	if app == nil {
		return nil, eris.New("analysis: nil application")
	}
	if s.backend == nil {
		result := s.unavailableResult()
		s.persist(ctx, app.ID, result)
		return &result, nil
	}

	start := time.Now()
	roles := []model.AnalysisRole{model.RoleFact, model.RolePolicy, model.RoleWeb}

	var mu sync.Mutex
	steps := make(map[model.AnalysisRole]StepResult, len(roles))

	g, gCtx := errgroup.WithContext(ctx)
	for _, role := range roles {
		g.Go(func() error {
			step := s.runStep(gCtx, role, app, sheet)
			mu.Lock()
			steps[role] = step
			mu.Unlock()
			return nil // Step failures never abort the other roles.
		})
	}
	_ = g.Wait()

	result := Assemble(steps, app, sheet, s.backend.Name())
	result = Validate(result)

	zap.L().Info("analysis complete",
		zap.String("application_id", app.ID),
		zap.String("risk_score", string(result.RiskScore)),
		zap.String("recommendation", string(result.Recommendation)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	s.persist(ctx, app.ID, result)
	return &result, nil
}

// runStep executes one role end to end: prompt, invoke, extract. All
// failures are converted into a failed StepTrace carrying the error as raw.
func (s *Service) runStep(ctx context.Context, role model.AnalysisRole, app *model.LicenseApplication, sheet *model.EmployerFactSheet) StepResult {
	prompt := BuildPrompt(role, app, sheet, s.opts.Policy)

	trace := model.StepTrace{
		Role:   role,
		Prompt: prompt,
	}

	inv, err := s.backend.Invoke(ctx, prompt, backend.InvokeOptions{
		Timeout:   s.opts.StepTimeout,
		MaxTokens: s.opts.MaxTokens,
	})
	trace.FinishedAt = time.Now().UTC().Format(time.RFC3339)

	if err != nil {
		zap.L().Warn("analysis step failed",
			zap.String("role", string(role)),
			zap.String("application_id", app.ID),
			zap.Error(err),
		)
		trace.Status = model.StepFailed
		trace.Raw = err.Error()
		return StepResult{Role: role, Trace: trace}
	}

	trace.Raw = inv.Response
	trace.DurationMs = inv.Duration.Milliseconds()

	parsed := ExtractJSON(inv.Response)
	if parsed == nil {
		zap.L().Warn("analysis step returned unparsable response",
			zap.String("role", string(role)),
			zap.String("application_id", app.ID),
			zap.Int("response_len", len(inv.Response)),
		)
		trace.Status = model.StepFailed
		return StepResult{Role: role, Trace: trace}
	}

	trace.Status = model.StepSuccess
	return StepResult{Role: role, Parsed: parsed, Trace: trace}
}

// persist writes the assembled result after assembly, retrying transient
// store failures. Persistence problems are logged, never surfaced: the
// caller already holds the result.
func (s *Service) persist(ctx context.Context, applicationID string, result model.AIAnalysisResult) {
	if s.store == nil {
		return
	}
	key := AnalysisKey(applicationID)
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		return s.store.SaveAnalysis(ctx, key, result)
	})
	if err != nil {
		zap.L().Error("persist analysis result",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("analysis result saved", zap.String("key", key))
}

// unavailableResult is the well-formed fallback returned when no backend
// is configured; the review UI renders it instead of an error page.
func (s *Service) unavailableResult() model.AIAnalysisResult {
	result := Normalize(nil)
	result.Recommendation = model.RecommendManualReview
	result.Summary = "AI analysis is not configured for this environment; manual review required."
	result.Concerns = []string{"Analysis backend unavailable"}
	return result
}
