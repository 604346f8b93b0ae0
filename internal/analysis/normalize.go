package analysis

import (
	"strings"
	"time"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// Historical pipeline versions persisted results under drifting field
// names: camelCase vs snake_case blocks, per-step debug at four different
// locations, flat raw-response strings. Normalize reconciles them all into
// the canonical shape. Every alias is an explicit ordered key path here;
// call sites never do their own fallback chasing.
//
// Normalization is idempotent: canonical input round-trips unchanged.

// Ordered candidate key paths per logical field, first match wins.
// Dots descend into nested objects.
var (
	riskScoreAliases      = []string{"riskScore", "risk_score", "riskLevel", "risk_level"}
	testAccountAliases    = []string{"isTestAccount", "is_test_account"}
	factSummaryAliases    = []string{"factSheetSummary", "fact_sheet_summary"}
	recommendationAliases = []string{"recommendation", "recommended_action", "recommendedAction"}
	internalAliases       = []string{"internalRecordValidation", "internal_record_validation"}
	geographicAliases     = []string{"geographicValidation", "geographic_validation"}
	webPresenceAliases    = []string{"webPresenceValidation", "web_presence_validation"}
	certificationAliases  = []string{"certificationAnalysis", "certification_analysis"}
	violationsAliases     = []string{"policyViolations", "policy_violations"}
	actionsAliases        = []string{"requiredActions", "required_actions"}
	perStepAliases        = []string{"debug.perStepDebug", "debug.per_step_debug", "perStepDebug", "extraDebug.perStepDebug"}
	rawResponseAliases    = []string{"debug.rawResponse", "debug.raw_response", "rawResponse", "raw_response"}
	executedAtAliases     = []string{"executedAt", "executed_at", "debug.executedAt", "debug.executed_at"}
)

// Normalize coalesces a parsed analysis object of any historical shape into
// the canonical AIAnalysisResult. A nil or non-object input yields the
// all-default skeleton rather than an error.
func Normalize(parsed any) model.AIAnalysisResult {
	m, _ := parsed.(map[string]any)

	out := model.AIAnalysisResult{
		RiskScore:                normalizeRiskScore(lookupString(m, riskScoreAliases)),
		IsTestAccount:            lookupBool(m, testAccountAliases),
		Summary:                  lookupString(m, []string{"summary"}),
		FactSheetSummary:         lookupString(m, factSummaryAliases),
		InternalRecordValidation: normalizeInternal(lookupMap(m, internalAliases)),
		GeographicValidation:     normalizeGeographic(lookupMap(m, geographicAliases)),
		WebPresenceValidation:    normalizeWebPresence(lookupMap(m, webPresenceAliases)),
		CertificationAnalysis:    normalizeCertification(lookupMap(m, certificationAliases)),
		Concerns:                 toStringSlice(lookup(m, []string{"concerns"})),
		PolicyViolations:         normalizeViolations(lookup(m, violationsAliases)),
		RequiredActions:          toStringSlice(lookup(m, actionsAliases)),
		Sources:                  normalizeSources(lookup(m, []string{"sources"})),
		Recommendation:           normalizeRecommendation(lookupString(m, recommendationAliases)),
	}

	out.Debug = normalizeDebug(m)
	out.ExecutedAt = resolveExecutedAt(m, out.Debug)
	return out
}

func normalizeRiskScore(v string) model.RiskScore {
	switch model.RiskScore(strings.ToUpper(strings.TrimSpace(v))) {
	case model.RiskLow:
		return model.RiskLow
	case model.RiskMedium:
		return model.RiskMedium
	case model.RiskHigh:
		return model.RiskHigh
	case model.RiskInvalid:
		return model.RiskInvalid
	case "":
		return model.RiskMedium
	default:
		return model.RiskInvalid
	}
}

func normalizeRecommendation(v string) model.Recommendation {
	switch model.Recommendation(strings.ToUpper(strings.TrimSpace(v))) {
	case model.RecommendApprove:
		return model.RecommendApprove
	case model.RecommendReject:
		return model.RecommendReject
	case model.RecommendRequestInfo:
		return model.RecommendRequestInfo
	case model.RecommendInvalid:
		return model.RecommendInvalid
	default:
		return model.RecommendManualReview
	}
}

func normalizeInternal(m map[string]any) model.InternalRecordValidation {
	return model.InternalRecordValidation{
		RecordFound:    lookupBool(m, []string{"recordFound", "record_found"}),
		AccountNumber:  toStringPtr(lookup(m, []string{"accountNumber", "account_number"})),
		OverdueBalance: toFloatPtr(lookup(m, []string{"overdueBalance", "overdue_balance"})),
		StatusMatch:    toBoolPtr(lookup(m, []string{"statusMatch", "status_match"})),
		Concerns:       toStringSlice(lookup(m, []string{"concerns"})),
	}
}

func normalizeGeographic(m map[string]any) model.GeographicValidation {
	return model.GeographicValidation{
		AddressExistsInBC: lookupBool(m, []string{"addressExistsInBC", "address_exists_in_bc"}),
		AddressConflicts:  toStringSlice(lookup(m, []string{"addressConflicts", "address_conflicts"})),
		VerifiedLocation:  toStringPtr(lookup(m, []string{"verifiedLocation", "verified_location"})),
	}
}

func normalizeWebPresence(m map[string]any) model.WebPresenceValidation {
	return model.WebPresenceValidation{
		CompanyFound:     lookupBool(m, []string{"companyFound", "company_found"}),
		RelevantIndustry: lookupBool(m, []string{"relevantIndustry", "relevant_industry"}),
		SearchSummary:    lookupString(m, []string{"searchSummary", "search_summary"}),
	}
}

func normalizeCertification(m map[string]any) model.CertificationAnalysis {
	return model.CertificationAnalysis{
		TotalWorkers:     toIntPtr(lookup(m, []string{"totalWorkers", "total_workers"})),
		CertifiedWorkers: toIntPtr(lookup(m, []string{"certifiedWorkers", "certified_workers"})),
		ComplianceRatio:  toFloatPtr(lookup(m, []string{"complianceRatio", "compliance_ratio"})),
		MeetsRequirement: toBoolPtr(lookup(m, []string{"meetsRequirement", "meets_requirement"})),
	}
}

func normalizeViolations(v any) []model.PolicyViolation {
	out := []model.PolicyViolation{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, model.PolicyViolation{Description: t})
		case map[string]any:
			out = append(out, model.PolicyViolation{
				Field:       lookupString(t, []string{"field"}),
				Policy:      lookupString(t, []string{"policy", "policy_reference", "policyReference"}),
				Description: lookupString(t, []string{"description", "details"}),
				Severity:    lookupString(t, []string{"severity"}),
			})
		}
	}
	return out
}

func normalizeSources(v any) []model.Source {
	out := []model.Source{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, model.Source{URL: t})
		case map[string]any:
			out = append(out, model.Source{
				Title: lookupString(t, []string{"title", "name"}),
				URL:   lookupString(t, []string{"url", "link"}),
			})
		}
	}
	return out
}

// normalizeDebug resolves per-step traces from their historical locations.
// When only a flat raw response survives, it synthesizes a single fact-step
// trace so the UI always has at least one inspectable record.
func normalizeDebug(m map[string]any) *model.AnalysisDebug {
	steps := normalizeSteps(lookup(m, perStepAliases))
	raw, _ := lookup(m, rawResponseAliases).(string)
	backend := lookupString(m, []string{"debug.backend", "backend"})
	validationErrs := toStringSlice(lookup(m, []string{"debug.validationErrors", "debug.validation_errors"}))

	if len(steps) == 0 && raw != "" {
		status := model.StepFailed
		if ExtractJSON(raw) != nil {
			status = model.StepSuccess
		}
		steps = []model.StepTrace{{
			Role:   model.RoleFact,
			Status: status,
			Raw:    raw,
		}}
	}

	if len(steps) == 0 && raw == "" && backend == "" && len(validationErrs) == 0 {
		return nil
	}

	dbg := &model.AnalysisDebug{
		PerStepDebug: steps,
		RawResponse:  raw,
		Backend:      backend,
		ExecutedAt:   lookupString(m, []string{"debug.executedAt", "debug.executed_at"}),
	}
	if len(validationErrs) > 0 {
		dbg.ValidationErrors = validationErrs
	}
	return dbg
}

func normalizeSteps(v any) []model.StepTrace {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var steps []model.StepTrace
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		status := model.StepStatus(lookupString(m, []string{"status"}))
		if status != model.StepSuccess && status != model.StepFailed {
			status = model.StepFailed
		}
		durMs := int64(0)
		if f := toFloatPtr(lookup(m, []string{"durationMs", "duration_ms"})); f != nil {
			durMs = int64(*f)
		}
		steps = append(steps, model.StepTrace{
			Role:       model.AnalysisRole(lookupString(m, []string{"role", "step"})),
			Status:     status,
			Prompt:     lookupString(m, []string{"prompt"}),
			Raw:        lookupString(m, []string{"raw", "rawResponse", "raw_response"}),
			DurationMs: durMs,
			FinishedAt: lookupString(m, []string{"finishedAt", "finished_at"}),
		})
	}
	return steps
}

// resolveExecutedAt applies the documented priority: explicit top-level
// value, then debug.executedAt, then the latest per-step finishedAt, then
// the current time.
func resolveExecutedAt(m map[string]any, dbg *model.AnalysisDebug) string {
	for _, path := range executedAtAliases {
		if s := lookupString(m, []string{path}); s != "" {
			return s
		}
	}
	if dbg != nil {
		latest := ""
		for _, step := range dbg.PerStepDebug {
			if step.FinishedAt > latest {
				latest = step.FinishedAt
			}
		}
		if latest != "" {
			return latest
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// --- lookup table resolution ---

// lookup returns the first present value among the candidate key paths.
func lookup(m map[string]any, paths []string) any {
	for _, path := range paths {
		cur := any(m)
		found := true
		for _, key := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			cur, ok = obj[key]
			if !ok {
				found = false
				break
			}
		}
		if found && cur != nil {
			return cur
		}
	}
	return nil
}

func lookupString(m map[string]any, paths []string) string {
	s, _ := lookup(m, paths).(string)
	return s
}

func lookupBool(m map[string]any, paths []string) bool {
	b, _ := lookup(m, paths).(bool)
	return b
}

func lookupMap(m map[string]any, paths []string) map[string]any {
	mm, _ := lookup(m, paths).(map[string]any)
	return mm
}

func toStringSlice(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func toStringPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func toBoolPtr(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

func toFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

func toIntPtr(v any) *int {
	if f := toFloatPtr(v); f != nil {
		i := int(*f)
		return &i
	}
	return nil
}
