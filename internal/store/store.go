package store

import (
	"context"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// ApplicationFilter specifies criteria for listing applications.
type ApplicationFilter struct {
	Status model.ApplicationStatus `json:"status,omitempty"`
	Limit  int                     `json:"limit,omitempty"`
	Offset int                     `json:"offset,omitempty"`
}

// Store defines the persistence interface for the licensing portal.
type Store interface {
	// Applications
	CreateApplication(ctx context.Context, app *model.LicenseApplication) (*model.LicenseApplication, error)
	GetApplication(ctx context.Context, id string) (*model.LicenseApplication, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.LicenseApplication, error)
	UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus, adminNotes string) error

	// Fact sheet registry
	UpsertFactSheets(ctx context.Context, sheets []model.EmployerFactSheet) (int, error)
	GetFactSheet(ctx context.Context, employerID string) (*model.EmployerFactSheet, error)
	ListFactSheets(ctx context.Context) ([]model.EmployerFactSheet, error)

	// Analysis results, keyed by analysis.AnalysisKey. LoadAnalysis
	// returns the stored document with its original keys intact;
	// historical records predate the current field naming, so callers
	// re-normalize on every view. nil, nil on miss.
	SaveAnalysis(ctx context.Context, key string, result model.AIAnalysisResult) error
	LoadAnalysis(ctx context.Context, key string) (map[string]any, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
