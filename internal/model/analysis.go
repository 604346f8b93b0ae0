package model

// RiskScore is the model's overall risk rating for an application.
type RiskScore string

const (
	RiskLow     RiskScore = "LOW"
	RiskMedium  RiskScore = "MEDIUM"
	RiskHigh    RiskScore = "HIGH"
	RiskInvalid RiskScore = "INVALID"
)

// Recommendation is the model's suggested admin action.
type Recommendation string

const (
	RecommendApprove      Recommendation = "APPROVE"
	RecommendReject       Recommendation = "REJECT"
	RecommendRequestInfo  Recommendation = "REQUEST_INFO"
	RecommendInvalid      Recommendation = "INVALID_APPLICATION"
	RecommendManualReview Recommendation = "MANUAL_REVIEW_REQUIRED"
)

// AnalysisRole is one of the three independent analysis perspectives.
type AnalysisRole string

const (
	RoleFact   AnalysisRole = "fact"
	RolePolicy AnalysisRole = "policy"
	RoleWeb    AnalysisRole = "web"
)

// StepStatus is the terminal state of one analysis step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// AIAnalysisResult is the canonical output of an analysis run. All fields
// below debug are guaranteed present after normalization; absent source
// fields are filled with documented defaults, never left undefined.
type AIAnalysisResult struct {
	RiskScore                RiskScore                `json:"riskScore"`
	IsTestAccount            bool                     `json:"isTestAccount"`
	Summary                  string                   `json:"summary"`
	FactSheetSummary         string                   `json:"factSheetSummary,omitempty"`
	InternalRecordValidation InternalRecordValidation `json:"internalRecordValidation"`
	GeographicValidation     GeographicValidation     `json:"geographicValidation"`
	WebPresenceValidation    WebPresenceValidation    `json:"webPresenceValidation"`
	CertificationAnalysis    CertificationAnalysis    `json:"certificationAnalysis"`
	Concerns                 []string                 `json:"concerns"`
	PolicyViolations         []PolicyViolation        `json:"policyViolations"`
	RequiredActions          []string                 `json:"requiredActions"`
	Sources                  []Source                 `json:"sources"`
	Recommendation           Recommendation           `json:"recommendation"`
	Debug                    *AnalysisDebug           `json:"debug,omitempty"`
	ExecutedAt               string                   `json:"executedAt"`
}

// InternalRecordValidation is the fact step's comparison of the application
// against the employer fact sheet registry.
type InternalRecordValidation struct {
	RecordFound    bool     `json:"recordFound"`
	AccountNumber  *string  `json:"accountNumber"`
	OverdueBalance *float64 `json:"overdueBalance"`
	StatusMatch    *bool    `json:"statusMatch"`
	Concerns       []string `json:"concerns"`
}

// GeographicValidation is the web step's address check.
type GeographicValidation struct {
	AddressExistsInBC bool     `json:"addressExistsInBC"`
	AddressConflicts  []string `json:"addressConflicts"`
	VerifiedLocation  *string  `json:"verifiedLocation"`
}

// WebPresenceValidation is the web step's business-profile check.
type WebPresenceValidation struct {
	CompanyFound     bool   `json:"companyFound"`
	RelevantIndustry bool   `json:"relevantIndustry"`
	SearchSummary    string `json:"searchSummary"`
}

// CertificationAnalysis is the policy step's worker certification math.
type CertificationAnalysis struct {
	TotalWorkers     *int     `json:"totalWorkers"`
	CertifiedWorkers *int     `json:"certifiedWorkers"`
	ComplianceRatio  *float64 `json:"complianceRatio"`
	MeetsRequirement *bool    `json:"meetsRequirement"`
}

// PolicyViolation records one policy breach identified by the model.
type PolicyViolation struct {
	Field       string `json:"field"`
	Policy      string `json:"policy,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// Source is a citation attached by the web step.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// AnalysisDebug carries the operator-facing trace for a run.
type AnalysisDebug struct {
	PerStepDebug     []StepTrace `json:"perStepDebug,omitempty"`
	RawResponse      string      `json:"rawResponse,omitempty"`
	ValidationErrors []string    `json:"validationErrors,omitempty"`
	ExecutedAt       string      `json:"executedAt,omitempty"`
	Backend          string      `json:"backend,omitempty"`
}

// StepTrace preserves one step's prompt, raw response and timing for
// troubleshooting in the admin UI.
type StepTrace struct {
	Role       AnalysisRole `json:"role"`
	Status     StepStatus   `json:"status"`
	Prompt     string       `json:"prompt,omitempty"`
	Raw        string       `json:"raw,omitempty"`
	DurationMs int64        `json:"durationMs,omitempty"`
	FinishedAt string       `json:"finishedAt,omitempty"`
}
