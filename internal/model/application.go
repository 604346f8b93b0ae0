package model

import "time"

// ApplicationStatus is the review state of a license application.
type ApplicationStatus string

const (
	StatusDraft            ApplicationStatus = "draft"
	StatusSubmitted        ApplicationStatus = "submitted"
	StatusUnderReview      ApplicationStatus = "under_review"
	StatusApproved         ApplicationStatus = "approved"
	StatusRejected         ApplicationStatus = "rejected"
	StatusNeedsInformation ApplicationStatus = "needs_information"
)

// LicenseApplication is an employer's submitted license request.
type LicenseApplication struct {
	ID            string            `json:"id"`
	CompanyName   string            `json:"companyName"`
	ApplicantName string            `json:"applicantName"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	LicenseType   string            `json:"licenseType"`
	Status        ApplicationStatus `json:"status"`
	SafetyHistory SafetyHistory     `json:"safetyHistory"`
	WizardData    *WizardData       `json:"wizardData,omitempty"`
	AIAnalysis    []byte            `json:"aiAnalysis,omitempty"`
	AdminNotes    string            `json:"adminNotes,omitempty"`
	SubmittedAt   *time.Time        `json:"submittedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// SafetyHistory holds the applicant's declared safety record.
type SafetyHistory struct {
	HasViolations       bool       `json:"hasViolations"`
	ViolationDetails    string     `json:"violationDetails,omitempty"`
	YearsExperience     int        `json:"yearsExperience"`
	InsuranceExpiryDate *time.Time `json:"insuranceExpiryDate,omitempty"`
}

// WizardData is the full structured questionnaire captured by the
// application wizard.
type WizardData struct {
	Contact           ContactInfo      `json:"contact"`
	ScopeOfWork       ScopeOfWork      `json:"scopeOfWork"`
	FirmAccountNumber string           `json:"firmAccountNumber"`
	FirmLegalName     string           `json:"firmLegalName"`
	FirmAddress       string           `json:"firmAddress"`
	FirmCity          string           `json:"firmCity"`
	FirmProvince      string           `json:"firmProvince"`
	TotalWorkers      int              `json:"totalWorkers"`
	CertifiedWorkers  int              `json:"certifiedWorkers"`
	LicensingHistory  LicensingHistory `json:"licensingHistory"`
	Associates        []Associate      `json:"associates,omitempty"`
	Acknowledgements  Acknowledgements `json:"acknowledgements"`
}

// ContactInfo is the wizard's contact step.
type ContactInfo struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Website  string `json:"website,omitempty"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Province string `json:"province"`
}

// ScopeOfWork flags the abatement activities the firm intends to perform.
type ScopeOfWork struct {
	Removal        bool `json:"removal"`
	Encapsulation  bool `json:"encapsulation"`
	Transport      bool `json:"transport"`
	Disposal       bool `json:"disposal"`
	DemolitionPrep bool `json:"demolitionPrep"`
}

// LicensingHistory flags prior licensing events declared by the firm.
type LicensingHistory struct {
	PreviouslyLicensed bool   `json:"previouslyLicensed"`
	PreviousLicenceNo  string `json:"previousLicenceNo,omitempty"`
	LicenceRefused     bool   `json:"licenceRefused"`
	LicenceCancelled   bool   `json:"licenceCancelled"`
}

// Associate is a person or firm associated with the applicant (director,
// officer, shareholder). Embedded in WizardData; no independent lifecycle.
type Associate struct {
	Name        string              `json:"name"`
	Role        string              `json:"role"`
	FirmName    string              `json:"firmName,omitempty"`
	Declaration *HistoryDeclaration `json:"declaration,omitempty"`
}

// HistoryDeclaration captures an associate's regulatory history flags.
type HistoryDeclaration struct {
	LicenceCancelledOrRefused bool `json:"licenceCancelledOrRefused"`
	EnforcementAction         bool `json:"enforcementAction"`
	CriminalOrCivilProcess    bool `json:"criminalOrCivilProcess"`
	AsbestosEnforcement       bool `json:"asbestosEnforcement"`
}

// Acknowledgements are the final-step declaration checkboxes.
type Acknowledgements struct {
	InformationAccurate  bool `json:"informationAccurate"`
	UnderstandObligation bool `json:"understandObligation"`
	ConsentToVerify      bool `json:"consentToVerify"`
}

// AccountNumber returns the firm account number used to join against the
// fact sheet registry, or "" when no wizard data was submitted.
func (a *LicenseApplication) AccountNumber() string {
	if a.WizardData == nil {
		return ""
	}
	return a.WizardData.FirmAccountNumber
}

// Reviewable reports whether the application is in a state an admin can act on.
func (a *LicenseApplication) Reviewable() bool {
	switch a.Status {
	case StatusSubmitted, StatusUnderReview, StatusNeedsInformation:
		return true
	}
	return false
}
