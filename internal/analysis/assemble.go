package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// StepResult is one analysis step's settled outcome: the parsed payload
// (nil when the call or extraction failed) plus its preserved trace.
type StepResult struct {
	Role   model.AnalysisRole
	Parsed any
	Trace  model.StepTrace
}

// Failed reports whether the step produced no usable payload.
func (s StepResult) Failed() bool {
	return s.Parsed == nil || s.Trace.Status == model.StepFailed
}

// Assemble merges the three step outputs into one result. Field provenance
// is fixed by role regardless of completion order: the policy step is
// authoritative for riskScore/recommendation, the fact step for the
// internal record comparison, the web step for geography and web presence.
// A failed step degrades only its own fields to defaults.
func Assemble(steps map[model.AnalysisRole]StepResult, app *model.LicenseApplication, sheet *model.EmployerFactSheet, backendName string) model.AIAnalysisResult {
	fact := steps[model.RoleFact]
	policy := steps[model.RolePolicy]
	web := steps[model.RoleWeb]

	factN := Normalize(fact.Parsed)
	policyN := Normalize(policy.Parsed)
	webN := Normalize(web.Parsed)

	out := model.AIAnalysisResult{
		RiskScore:                policyN.RiskScore,
		Recommendation:           policyN.Recommendation,
		IsTestAccount:            factN.IsTestAccount,
		InternalRecordValidation: factN.InternalRecordValidation,
		GeographicValidation:     webN.GeographicValidation,
		WebPresenceValidation:    webN.WebPresenceValidation,
		CertificationAnalysis:    policyN.CertificationAnalysis,
		Concerns:                 policyN.Concerns,
		PolicyViolations:         policyN.PolicyViolations,
		RequiredActions:          policyN.RequiredActions,
		Sources:                  webN.Sources,
	}

	if policy.Failed() {
		out.RiskScore = model.RiskMedium
		out.Recommendation = model.RecommendManualReview
	}

	// Space-joined step summaries, skipping steps that produced none.
	var parts []string
	for _, n := range []model.AIAnalysisResult{factN, policyN, webN} {
		if s := strings.TrimSpace(n.Summary); s != "" {
			parts = append(parts, s)
		}
	}
	out.Summary = strings.Join(parts, " ")

	out.FactSheetSummary = factSheetSummary(factN, sheet)

	// The fact-sheet join is deterministic; a matched sheet fills gaps the
	// model left in the internal record block (and settles recordFound).
	if sheet != nil {
		out.InternalRecordValidation.RecordFound = true
		if out.InternalRecordValidation.AccountNumber == nil {
			acct := sheet.EmployerID
			out.InternalRecordValidation.AccountNumber = &acct
		}
		if out.InternalRecordValidation.OverdueBalance == nil {
			bal := sheet.OverdueBalance
			out.InternalRecordValidation.OverdueBalance = &bal
		}
	}

	traces := []model.StepTrace{fact.Trace, policy.Trace, web.Trace}
	out.Debug = &model.AnalysisDebug{
		PerStepDebug: traces,
		Backend:      backendName,
	}

	out.ExecutedAt = latestFinished(traces)
	if out.ExecutedAt == "" {
		out.ExecutedAt = time.Now().UTC().Format(time.RFC3339)
	}
	out.Debug.ExecutedAt = out.ExecutedAt

	return out
}

func factSheetSummary(factN model.AIAnalysisResult, sheet *model.EmployerFactSheet) string {
	if s := strings.TrimSpace(factN.Summary); s != "" {
		return s
	}
	if sheet != nil {
		return fmt.Sprintf("Matched to %s (ID: %s)", sheet.LegalName, sheet.EmployerID)
	}
	return "No fact sheet match"
}

func latestFinished(traces []model.StepTrace) string {
	latest := ""
	for _, t := range traces {
		if t.FinishedAt > latest {
			latest = t.FinishedAt
		}
	}
	return latest
}
