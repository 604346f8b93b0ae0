package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificworks/licensing-portal/internal/model"
)

func testApplication() *model.LicenseApplication {
	return &model.LicenseApplication{
		ID:            "app-1",
		CompanyName:   "Coastal Abatement Ltd",
		ApplicantName: "Dana Reyes",
		Email:         "dana@coastalabatement.ca",
		LicenseType:   "asbestos-abatement",
		Status:        model.StatusSubmitted,
		WizardData: &model.WizardData{
			FirmAccountNumber: "29615302",
			FirmLegalName:     "Coastal Abatement Ltd",
			TotalWorkers:      12,
			CertifiedWorkers:  4,
		},
	}
}

func testSheet() *model.EmployerFactSheet {
	return &model.EmployerFactSheet{
		EmployerID:     "29615302",
		LegalName:      "Coastal Abatement Ltd",
		ActiveStatus:   "Active",
		OverdueBalance: 1520.50,
	}
}

func successStep(role model.AnalysisRole, parsed map[string]any) StepResult {
	return StepResult{
		Role:   role,
		Parsed: parsed,
		Trace: model.StepTrace{
			Role:       role,
			Status:     model.StepSuccess,
			Raw:        "{}",
			FinishedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func failedStep(role model.AnalysisRole) StepResult {
	return StepResult{
		Role: role,
		Trace: model.StepTrace{
			Role:   role,
			Status: model.StepFailed,
			Raw:    "backend: timeout",
		},
	}
}

func TestAssemble_FieldProvenance(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact: successStep(model.RoleFact, map[string]any{
			"summary":       "account matched",
			"isTestAccount": false,
			"internalRecordValidation": map[string]any{
				"recordFound": true, "statusMatch": true, "concerns": []any{},
			},
			// A fact step must never decide the overall score.
			"riskScore": "LOW",
		}),
		model.RolePolicy: successStep(model.RolePolicy, map[string]any{
			"riskScore":      "HIGH",
			"recommendation": "REJECT",
			"summary":        "certification ratio below minimum",
			"concerns":       []any{"only 4 of 12 workers certified"},
			"policyViolations": []any{
				map[string]any{"field": "certifiedWorkers", "description": "ratio 0.33 < 0.50", "severity": "high"},
			},
			"requiredActions": []any{"certify additional workers"},
		}),
		model.RoleWeb: successStep(model.RoleWeb, map[string]any{
			"summary": "company found online",
			"geographicValidation": map[string]any{
				"addressExistsInBC": true, "addressConflicts": []any{},
			},
			"webPresenceValidation": map[string]any{
				"companyFound": true, "relevantIndustry": true, "searchSummary": "abatement contractor",
			},
			"sources": []any{map[string]any{"title": "site", "url": "https://coastalabatement.ca"}},
		}),
	}

	out := Assemble(steps, testApplication(), testSheet(), "generative")

	// Policy step is authoritative for score and recommendation.
	assert.Equal(t, model.RiskHigh, out.RiskScore)
	assert.Equal(t, model.RecommendReject, out.Recommendation)
	assert.Equal(t, []string{"only 4 of 12 workers certified"}, out.Concerns)
	require.Len(t, out.PolicyViolations, 1)
	assert.Equal(t, "certifiedWorkers", out.PolicyViolations[0].Field)

	// Fact step owns the internal record block.
	assert.True(t, out.InternalRecordValidation.RecordFound)
	require.NotNil(t, out.InternalRecordValidation.StatusMatch)
	assert.True(t, *out.InternalRecordValidation.StatusMatch)

	// Web step owns geography, presence, and sources.
	assert.True(t, out.GeographicValidation.AddressExistsInBC)
	assert.True(t, out.WebPresenceValidation.CompanyFound)
	require.Len(t, out.Sources, 1)

	// Summaries join in role order.
	assert.Equal(t, "account matched certification ratio below minimum company found online", out.Summary)

	require.NotNil(t, out.Debug)
	assert.Equal(t, "generative", out.Debug.Backend)
	assert.Len(t, out.Debug.PerStepDebug, 3)
	assert.NotEmpty(t, out.ExecutedAt)
}

func TestAssemble_PolicyFailureDegradesScore(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact: successStep(model.RoleFact, map[string]any{
			"summary": "account matched",
			"internalRecordValidation": map[string]any{
				"recordFound": true, "concerns": []any{},
			},
		}),
		model.RolePolicy: failedStep(model.RolePolicy),
		model.RoleWeb: successStep(model.RoleWeb, map[string]any{
			"summary": "found online",
		}),
	}

	out := Assemble(steps, testApplication(), testSheet(), "generative")

	assert.Equal(t, model.RiskMedium, out.RiskScore)
	assert.Equal(t, model.RecommendManualReview, out.Recommendation)

	// The surviving steps still contribute their fields.
	assert.True(t, out.InternalRecordValidation.RecordFound)
	assert.Contains(t, out.Summary, "found online")

	// The failed trace is preserved for the admin UI.
	require.NotNil(t, out.Debug)
	var policyTrace *model.StepTrace
	for i := range out.Debug.PerStepDebug {
		if out.Debug.PerStepDebug[i].Role == model.RolePolicy {
			policyTrace = &out.Debug.PerStepDebug[i]
		}
	}
	require.NotNil(t, policyTrace)
	assert.Equal(t, model.StepFailed, policyTrace.Status)
	assert.Equal(t, "backend: timeout", policyTrace.Raw)
}

func TestAssemble_MatchedSheetForcesRecordFound(t *testing.T) {
	// Model said no record, but the deterministic join found one.
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact: successStep(model.RoleFact, map[string]any{
			"internalRecordValidation": map[string]any{"recordFound": false},
		}),
		model.RolePolicy: successStep(model.RolePolicy, map[string]any{"riskScore": "LOW", "recommendation": "APPROVE"}),
		model.RoleWeb:    successStep(model.RoleWeb, map[string]any{}),
	}

	out := Assemble(steps, testApplication(), testSheet(), "generative")

	assert.True(t, out.InternalRecordValidation.RecordFound)
	require.NotNil(t, out.InternalRecordValidation.AccountNumber)
	assert.Equal(t, "29615302", *out.InternalRecordValidation.AccountNumber)
	require.NotNil(t, out.InternalRecordValidation.OverdueBalance)
	assert.Equal(t, 1520.50, *out.InternalRecordValidation.OverdueBalance)
}

func TestAssemble_NoSheetLeavesRecordAlone(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact:   successStep(model.RoleFact, map[string]any{}),
		model.RolePolicy: successStep(model.RolePolicy, map[string]any{"riskScore": "MEDIUM"}),
		model.RoleWeb:    successStep(model.RoleWeb, map[string]any{}),
	}

	out := Assemble(steps, testApplication(), nil, "generative")

	assert.False(t, out.InternalRecordValidation.RecordFound)
	assert.Nil(t, out.InternalRecordValidation.AccountNumber)
	assert.Equal(t, "No fact sheet match", out.FactSheetSummary)
}

func TestAssemble_FactSheetSummaryFromSheet(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact:   successStep(model.RoleFact, map[string]any{}),
		model.RolePolicy: successStep(model.RolePolicy, map[string]any{"riskScore": "LOW"}),
		model.RoleWeb:    successStep(model.RoleWeb, map[string]any{}),
	}

	out := Assemble(steps, testApplication(), testSheet(), "generative")

	assert.Equal(t, "Matched to Coastal Abatement Ltd (ID: 29615302)", out.FactSheetSummary)
}

func TestAssemble_AllStepsFailed(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact:   failedStep(model.RoleFact),
		model.RolePolicy: failedStep(model.RolePolicy),
		model.RoleWeb:    failedStep(model.RoleWeb),
	}

	out := Assemble(steps, testApplication(), nil, "agent-runtime")

	assert.Equal(t, model.RiskMedium, out.RiskScore)
	assert.Equal(t, model.RecommendManualReview, out.Recommendation)
	require.NotNil(t, out.Debug)
	assert.Len(t, out.Debug.PerStepDebug, 3)
	assert.NotEmpty(t, out.ExecutedAt)
}

func TestAssemble_ExecutedAtFromLatestTrace(t *testing.T) {
	steps := map[model.AnalysisRole]StepResult{
		model.RoleFact:   {Role: model.RoleFact, Parsed: map[string]any{}, Trace: model.StepTrace{Role: model.RoleFact, Status: model.StepSuccess, FinishedAt: "2026-05-01T10:00:01Z"}},
		model.RolePolicy: {Role: model.RolePolicy, Parsed: map[string]any{}, Trace: model.StepTrace{Role: model.RolePolicy, Status: model.StepSuccess, FinishedAt: "2026-05-01T10:00:20Z"}},
		model.RoleWeb:    {Role: model.RoleWeb, Parsed: map[string]any{}, Trace: model.StepTrace{Role: model.RoleWeb, Status: model.StepSuccess, FinishedAt: "2026-05-01T10:00:05Z"}},
	}

	out := Assemble(steps, testApplication(), nil, "generative")

	assert.Equal(t, "2026-05-01T10:00:20Z", out.ExecutedAt)
	assert.Equal(t, "2026-05-01T10:00:20Z", out.Debug.ExecutedAt)
}
