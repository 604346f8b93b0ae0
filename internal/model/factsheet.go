package model

import "time"

// EmployerFactSheet is an internal registry record describing a firm's
// account and compliance standing. Created and edited by admins
// independently of applications; read-only input to analysis.
type EmployerFactSheet struct {
	EmployerID            string     `json:"employerId"`
	LegalName             string     `json:"legalName"`
	TradeName             string     `json:"tradeName,omitempty"`
	ActiveStatus          string     `json:"activeStatus"`
	AccountCoverage       string     `json:"accountCoverage,omitempty"`
	ClassificationUnit    string     `json:"classificationUnit,omitempty"`
	OverdueBalance        float64    `json:"overdueBalance"`
	CurrentAccountBalance float64    `json:"currentAccountBalance"`
	RegisteredAt          *time.Time `json:"registeredAt,omitempty"`
	LastAssessedAt        *time.Time `json:"lastAssessedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// FindFactSheet returns the sheet whose EmployerID equals accountNumber
// exactly. The join is a single deterministic key; near-misses return nil.
func FindFactSheet(sheets []EmployerFactSheet, accountNumber string) *EmployerFactSheet {
	if accountNumber == "" {
		return nil
	}
	for i := range sheets {
		if sheets[i].EmployerID == accountNumber {
			return &sheets[i]
		}
	}
	return nil
}
