package analysis

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// resultSchema is the structural contract every analysis result must meet
// before it reaches callers. Validation is a safety net, not a gate: a
// failing document is demoted to a manual-review fallback, never an error.
const resultSchema = `{
	"type": "object",
	"required": [
		"riskScore", "isTestAccount", "summary",
		"internalRecordValidation", "geographicValidation",
		"webPresenceValidation", "certificationAnalysis",
		"concerns", "policyViolations", "requiredActions", "sources",
		"recommendation", "executedAt"
	],
	"properties": {
		"riskScore": {"enum": ["LOW", "MEDIUM", "HIGH", "INVALID"]},
		"isTestAccount": {"type": "boolean"},
		"summary": {"type": "string"},
		"internalRecordValidation": {
			"type": "object",
			"required": ["recordFound", "concerns"],
			"properties": {
				"recordFound": {"type": "boolean"},
				"accountNumber": {"type": ["string", "null"]},
				"overdueBalance": {"type": ["number", "null"]},
				"statusMatch": {"type": ["boolean", "null"]},
				"concerns": {"type": "array", "items": {"type": "string"}}
			}
		},
		"geographicValidation": {
			"type": "object",
			"required": ["addressExistsInBC", "addressConflicts"],
			"properties": {
				"addressExistsInBC": {"type": "boolean"},
				"addressConflicts": {"type": "array", "items": {"type": "string"}},
				"verifiedLocation": {"type": ["string", "null"]}
			}
		},
		"webPresenceValidation": {
			"type": "object",
			"required": ["companyFound", "relevantIndustry", "searchSummary"],
			"properties": {
				"companyFound": {"type": "boolean"},
				"relevantIndustry": {"type": "boolean"},
				"searchSummary": {"type": "string"}
			}
		},
		"certificationAnalysis": {"type": "object"},
		"concerns": {"type": "array", "items": {"type": "string"}},
		"policyViolations": {"type": "array"},
		"requiredActions": {"type": "array", "items": {"type": "string"}},
		"sources": {"type": "array"},
		"recommendation": {
			"enum": [
				"APPROVE", "REJECT", "REQUEST_INFO",
				"INVALID_APPLICATION", "MANUAL_REVIEW_REQUIRED"
			]
		},
		"executedAt": {"type": "string"}
	}
}`

var compiledSchema = gojsonschema.NewStringLoader(resultSchema)

// Validate asserts the normalized result satisfies the contract. On
// failure it returns the manual-review fallback with diagnostics attached
// under debug.validationErrors; the caller always receives a complete,
// renderable result.
func Validate(result model.AIAnalysisResult) model.AIAnalysisResult {
	payload, err := json.Marshal(result)
	if err != nil {
		return demote(result, []string{"marshal result: " + err.Error()})
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return demote(result, []string{"decode result: " + err.Error()})
	}

	if errs := ValidateDocument(doc); len(errs) > 0 {
		return demote(result, errs)
	}
	return result
}

// ValidateDocument checks an arbitrary result document against the schema
// and returns the validator's diagnostics, empty when the document conforms.
func ValidateDocument(doc map[string]any) []string {
	res, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{"schema validation error: " + err.Error()}
	}
	if res.Valid() {
		return nil
	}
	errs := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		errs = append(errs, desc.String())
	}
	return errs
}

// demote replaces an invalid result with a safe manual-review fallback,
// preserving the risk score when one survived and the full debug trace.
func demote(result model.AIAnalysisResult, errs []string) model.AIAnalysisResult {
	zap.L().Warn("analysis result failed schema validation",
		zap.Strings("errors", errs),
	)

	// Preserve the risk score when a legal one survived; anything else
	// (including the empty string) becomes INVALID so the fallback itself
	// conforms to the schema.
	riskScore := result.RiskScore
	switch riskScore {
	case model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskInvalid:
	default:
		riskScore = model.RiskInvalid
	}

	fallback := Normalize(nil)
	fallback.RiskScore = riskScore
	fallback.Recommendation = model.RecommendManualReview
	fallback.Summary = "Automated analysis did not produce a valid result; manual review required."
	fallback.Concerns = []string{"Analysis result failed schema validation"}
	fallback.ExecutedAt = result.ExecutedAt
	if fallback.ExecutedAt == "" {
		fallback.ExecutedAt = Normalize(nil).ExecutedAt
	}

	fallback.Debug = result.Debug
	if fallback.Debug == nil {
		fallback.Debug = &model.AnalysisDebug{}
	}
	fallback.Debug.ValidationErrors = errs
	return fallback
}
