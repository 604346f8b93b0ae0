package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificworks/licensing-portal/internal/model"
)

func TestNormalize_NilInput(t *testing.T) {
	out := Normalize(nil)

	assert.Equal(t, model.RiskMedium, out.RiskScore)
	assert.Equal(t, model.RecommendManualReview, out.Recommendation)
	assert.False(t, out.IsTestAccount)
	assert.NotNil(t, out.Concerns)
	assert.Empty(t, out.Concerns)
	assert.NotNil(t, out.PolicyViolations)
	assert.NotNil(t, out.Sources)
	assert.Nil(t, out.Debug)
	assert.NotEmpty(t, out.ExecutedAt)
}

func TestNormalize_CanonicalShape(t *testing.T) {
	in := map[string]any{
		"riskScore":      "HIGH",
		"isTestAccount":  true,
		"summary":        "elevated risk",
		"recommendation": "REJECT",
		"concerns":       []any{"overdue balance"},
		"internalRecordValidation": map[string]any{
			"recordFound":    true,
			"accountNumber":  "29615302",
			"overdueBalance": 1520.5,
			"statusMatch":    false,
			"concerns":       []any{"status mismatch"},
		},
	}

	out := Normalize(in)

	assert.Equal(t, model.RiskHigh, out.RiskScore)
	assert.Equal(t, model.RecommendReject, out.Recommendation)
	assert.True(t, out.IsTestAccount)
	assert.Equal(t, "elevated risk", out.Summary)
	assert.True(t, out.InternalRecordValidation.RecordFound)
	require.NotNil(t, out.InternalRecordValidation.AccountNumber)
	assert.Equal(t, "29615302", *out.InternalRecordValidation.AccountNumber)
	require.NotNil(t, out.InternalRecordValidation.OverdueBalance)
	assert.Equal(t, 1520.5, *out.InternalRecordValidation.OverdueBalance)
	require.NotNil(t, out.InternalRecordValidation.StatusMatch)
	assert.False(t, *out.InternalRecordValidation.StatusMatch)
}

func TestNormalize_SnakeCaseAliases(t *testing.T) {
	in := map[string]any{
		"risk_score":     "low",
		"recommendation": "approve",
		"web_presence_validation": map[string]any{
			"company_found":     true,
			"relevant_industry": true,
			"search_summary":    "established contractor",
		},
		"required_actions": []any{"none"},
	}

	out := Normalize(in)

	assert.Equal(t, model.RiskLow, out.RiskScore)
	assert.Equal(t, model.RecommendApprove, out.Recommendation)
	assert.True(t, out.WebPresenceValidation.CompanyFound)
	assert.True(t, out.WebPresenceValidation.RelevantIndustry)
	assert.Equal(t, "established contractor", out.WebPresenceValidation.SearchSummary)
	assert.Equal(t, []string{"none"}, out.RequiredActions)
}

func TestNormalize_RiskLevelLegacyAlias(t *testing.T) {
	out := Normalize(map[string]any{"riskLevel": "HIGH"})
	assert.Equal(t, model.RiskHigh, out.RiskScore)

	out = Normalize(map[string]any{"risk_level": "medium"})
	assert.Equal(t, model.RiskMedium, out.RiskScore)
}

func TestNormalize_MissingRiskScoreDefaultsMedium(t *testing.T) {
	out := Normalize(map[string]any{"summary": "no score present"})
	assert.Equal(t, model.RiskMedium, out.RiskScore)
}

func TestNormalize_UnknownRiskScoreIsInvalid(t *testing.T) {
	out := Normalize(map[string]any{"riskScore": "CATASTROPHIC"})
	assert.Equal(t, model.RiskInvalid, out.RiskScore)
}

func TestNormalize_UnknownRecommendationManualReview(t *testing.T) {
	out := Normalize(map[string]any{"recommendation": "ESCALATE_TO_LEGAL"})
	assert.Equal(t, model.RecommendManualReview, out.Recommendation)
}

func TestNormalize_ViolationsFromStringsAndObjects(t *testing.T) {
	in := map[string]any{
		"policyViolations": []any{
			"uncertified crew",
			map[string]any{
				"field":       "certifiedWorkers",
				"policy":      "OHS 6.1",
				"description": "ratio below minimum",
				"severity":    "high",
			},
		},
	}

	out := Normalize(in)

	require.Len(t, out.PolicyViolations, 2)
	assert.Equal(t, "uncertified crew", out.PolicyViolations[0].Description)
	assert.Equal(t, "OHS 6.1", out.PolicyViolations[1].Policy)
	assert.Equal(t, "high", out.PolicyViolations[1].Severity)
}

func TestNormalize_SourcesFromStringsAndObjects(t *testing.T) {
	in := map[string]any{
		"sources": []any{
			"https://example.com/a",
			map[string]any{"title": "Registry", "url": "https://example.com/b"},
			map[string]any{"name": "Legacy", "link": "https://example.com/c"},
		},
	}

	out := Normalize(in)

	require.Len(t, out.Sources, 3)
	assert.Equal(t, "https://example.com/a", out.Sources[0].URL)
	assert.Equal(t, "Registry", out.Sources[1].Title)
	assert.Equal(t, "https://example.com/c", out.Sources[2].URL)
}

func TestNormalize_PerStepDebugLocations(t *testing.T) {
	step := map[string]any{"role": "policy", "status": "success", "raw": "{}"}

	locations := []map[string]any{
		{"debug": map[string]any{"perStepDebug": []any{step}}},
		{"debug": map[string]any{"per_step_debug": []any{step}}},
		{"perStepDebug": []any{step}},
		{"extraDebug": map[string]any{"perStepDebug": []any{step}}},
	}

	for i, in := range locations {
		out := Normalize(in)
		require.NotNil(t, out.Debug, "location %d", i)
		require.Len(t, out.Debug.PerStepDebug, 1, "location %d", i)
		assert.Equal(t, model.RolePolicy, out.Debug.PerStepDebug[0].Role)
		assert.Equal(t, model.StepSuccess, out.Debug.PerStepDebug[0].Status)
	}
}

func TestNormalize_SynthesizesTraceFromBareRaw(t *testing.T) {
	out := Normalize(map[string]any{
		"rawResponse": `{"riskScore": "LOW"}`,
	})

	require.NotNil(t, out.Debug)
	require.Len(t, out.Debug.PerStepDebug, 1)
	assert.Equal(t, model.RoleFact, out.Debug.PerStepDebug[0].Role)
	assert.Equal(t, model.StepSuccess, out.Debug.PerStepDebug[0].Status)
}

func TestNormalize_BareRawUnparsableMarkedFailed(t *testing.T) {
	out := Normalize(map[string]any{
		"rawResponse": "the model refused",
	})

	require.NotNil(t, out.Debug)
	require.Len(t, out.Debug.PerStepDebug, 1)
	assert.Equal(t, model.StepFailed, out.Debug.PerStepDebug[0].Status)
}

func TestNormalize_ExecutedAtPriority(t *testing.T) {
	// Explicit top-level wins.
	out := Normalize(map[string]any{
		"executedAt": "2026-01-02T03:04:05Z",
		"debug":      map[string]any{"executedAt": "2026-01-01T00:00:00Z"},
	})
	assert.Equal(t, "2026-01-02T03:04:05Z", out.ExecutedAt)

	// Then debug.executedAt.
	out = Normalize(map[string]any{
		"debug": map[string]any{"executedAt": "2026-01-01T00:00:00Z"},
	})
	assert.Equal(t, "2026-01-01T00:00:00Z", out.ExecutedAt)

	// Then the latest per-step finishedAt.
	out = Normalize(map[string]any{
		"perStepDebug": []any{
			map[string]any{"role": "fact", "status": "success", "finishedAt": "2026-01-01T00:00:01Z"},
			map[string]any{"role": "web", "status": "success", "finishedAt": "2026-01-01T00:00:09Z"},
		},
	})
	assert.Equal(t, "2026-01-01T00:00:09Z", out.ExecutedAt)

	// Nothing present: current time, still non-empty.
	out = Normalize(map[string]any{})
	assert.NotEmpty(t, out.ExecutedAt)
}

func TestNormalize_Idempotent(t *testing.T) {
	in := map[string]any{
		"riskScore":      "HIGH",
		"recommendation": "REJECT",
		"summary":        "risky",
		"isTestAccount":  false,
		"concerns":       []any{"c1"},
		"internalRecordValidation": map[string]any{
			"recordFound": true,
			"concerns":    []any{},
		},
		"executedAt": "2026-03-01T10:00:00Z",
	}

	first := Normalize(in)

	// Round-trip through JSON the way a stored result would be re-read.
	payload, err := json.Marshal(first)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc))

	second := Normalize(doc)

	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.Recommendation, second.Recommendation)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Concerns, second.Concerns)
	assert.Equal(t, first.InternalRecordValidation, second.InternalRecordValidation)
	assert.Equal(t, first.ExecutedAt, second.ExecutedAt)
}

func TestToStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStringSlice([]any{"a", "b"}))
	assert.Equal(t, []string{"a"}, toStringSlice([]any{"a", 7, nil}))
	assert.Empty(t, toStringSlice("not a slice"))
	assert.Empty(t, toStringSlice(nil))
}
