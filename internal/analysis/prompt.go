package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// Each role prompt enumerates the exact field names the normalizer expects
// and forbids fences and prose: the extractor's recovery heuristics depend
// on the model at least attempting a bare JSON object.

const jsonOnlyInstruction = `Respond with ONLY a single JSON object. Do not wrap it in markdown code fences. Do not add any explanation, preamble, or text outside the object.`

const factPromptTemplate = `You are a licensing officer comparing an asbestos-abatement license application against the employer's internal fact sheet record.

Application data:
%s

Internal fact sheet record:
%s

Compare the application's declared firm details against the internal record. Check whether the account exists, whether the declared firm status matches the registry, whether there is an overdue balance, and whether the submission looks like a test or demo account (placeholder names, throwaway contact details).

%s
Use exactly this shape:
{"summary": "<one-paragraph comparison>", "isTestAccount": <true|false>, "internalRecordValidation": {"recordFound": <true|false>, "accountNumber": "<account number or null>", "overdueBalance": <number or null>, "statusMatch": <true|false|null>, "concerns": ["<discrepancy>"]}}`

const policyPromptTemplate = `You are a regulatory policy analyst assessing an asbestos-abatement license application for compliance risk.

Application data:
%s

Internal fact sheet record:
%s

Licensing policy thresholds:
- Minimum certified-to-total worker ratio: %.2f
- Maximum tolerated overdue balance: $%.2f
- Minimum years of abatement experience: %d

Assess certification coverage, safety history, licensing history (including associate declarations), and financial standing against the thresholds. Rate the overall risk and recommend an action.

%s
Use exactly this shape:
{"riskScore": "LOW|MEDIUM|HIGH|INVALID", "recommendation": "APPROVE|REJECT|REQUEST_INFO|INVALID_APPLICATION|MANUAL_REVIEW_REQUIRED", "summary": "<one-paragraph assessment>", "certificationAnalysis": {"totalWorkers": <number or null>, "certifiedWorkers": <number or null>, "complianceRatio": <number or null>, "meetsRequirement": <true|false|null>}, "concerns": ["<concern>"], "policyViolations": [{"field": "<field>", "policy": "<policy reference>", "description": "<what was violated>", "severity": "low|medium|high"}], "requiredActions": ["<action the applicant must take>"]}`

const webPromptTemplate = `You are a business researcher verifying an asbestos-abatement license applicant's public profile.

Application data:
%s

Verify whether the company has a findable web presence, whether it operates in the hazardous-materials or construction industry, and whether the declared address exists in British Columbia. Note any conflicting addresses found online.

%s
Use exactly this shape:
{"summary": "<one-paragraph profile>", "geographicValidation": {"addressExistsInBC": <true|false>, "addressConflicts": ["<conflict>"], "verifiedLocation": "<location or null>"}, "webPresenceValidation": {"companyFound": <true|false>, "relevantIndustry": <true|false>, "searchSummary": "<what was found>"}, "sources": [{"title": "<page title>", "url": "<url>"}]}`

// BuildPrompt constructs the role-specific prompt for one analysis step.
// Pure function of its inputs; factSheet may be nil.
func BuildPrompt(role model.AnalysisRole, app *model.LicenseApplication, sheet *model.EmployerFactSheet, policy PolicyConfig) string {
	appJSON := marshalForPrompt(promptApplication(app))
	sheetJSON := "No matching fact sheet record was found for this applicant."
	if sheet != nil {
		sheetJSON = marshalForPrompt(sheet)
	}

	switch role {
	case model.RolePolicy:
		return fmt.Sprintf(policyPromptTemplate,
			appJSON,
			sheetJSON,
			policy.MinCertificationRatio,
			policy.MaxOverdueBalance,
			policy.MinYearsExperience,
			jsonOnlyInstruction,
		)
	case model.RoleWeb:
		return fmt.Sprintf(webPromptTemplate, appJSON, jsonOnlyInstruction)
	default:
		return fmt.Sprintf(factPromptTemplate, appJSON, sheetJSON, jsonOnlyInstruction)
	}
}

// promptApplication projects the application down to the fields the model
// needs, dropping admin notes and any previously stored analysis.
func promptApplication(app *model.LicenseApplication) map[string]any {
	out := map[string]any{
		"id":            app.ID,
		"companyName":   app.CompanyName,
		"applicantName": app.ApplicantName,
		"email":         app.Email,
		"phone":         app.Phone,
		"licenseType":   app.LicenseType,
		"safetyHistory": app.SafetyHistory,
	}
	if app.WizardData != nil {
		out["wizardData"] = app.WizardData
	}
	return out
}

func marshalForPrompt(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(data))
}
