package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pacificworks/licensing-portal/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS applications (
	id          TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	admin_notes TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fact_sheets (
	employer_id         TEXT PRIMARY KEY,
	legal_name          TEXT NOT NULL,
	trade_name          TEXT NOT NULL DEFAULT '',
	active_status       TEXT NOT NULL DEFAULT '',
	account_coverage    TEXT NOT NULL DEFAULT '',
	classification_unit TEXT NOT NULL DEFAULT '',
	overdue_balance     REAL NOT NULL DEFAULT 0,
	current_balance     REAL NOT NULL DEFAULT 0,
	registered_at       DATETIME,
	last_assessed_at    DATETIME,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_results (
	key      TEXT PRIMARY KEY,
	result   TEXT NOT NULL,
	saved_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_fact_sheets_legal_name ON fact_sheets(legal_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateApplication(ctx context.Context, app *model.LicenseApplication) (*model.LicenseApplication, error) {
	if app == nil {
		return nil, eris.New("sqlite: nil application")
	}

	stored := *app
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = model.StatusDraft
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal application")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applications (id, data, status, admin_notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, string(data), string(stored.Status), stored.AdminNotes, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert application")
	}
	return &stored, nil
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*model.LicenseApplication, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, status, admin_notes, created_at, updated_at FROM applications WHERE id = ?`,
		id,
	)
	return scanApplication(row)
}

func (s *SQLiteStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.LicenseApplication, error) {
	query := `SELECT data, status, admin_notes, created_at, updated_at FROM applications WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list applications")
	}
	defer rows.Close()

	var apps []model.LicenseApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, eris.Wrap(rows.Err(), "sqlite: list applications iterate")
}

func (s *SQLiteStore) UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus, adminNotes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, admin_notes = ?, updated_at = ? WHERE id = ?`,
		string(status), adminNotes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update application status %s", id)
	}
	return checkRowsAffected(res, "application", id)
}

func (s *SQLiteStore) UpsertFactSheets(ctx context.Context, sheets []model.EmployerFactSheet) (int, error) {
	if len(sheets) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, sheet := range sheets {
		if sheet.EmployerID == "" {
			return 0, eris.New("sqlite: fact sheet missing employer id")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fact_sheets
			 (employer_id, legal_name, trade_name, active_status, account_coverage, classification_unit,
			  overdue_balance, current_balance, registered_at, last_assessed_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (employer_id) DO UPDATE SET
			   legal_name = excluded.legal_name, trade_name = excluded.trade_name,
			   active_status = excluded.active_status, account_coverage = excluded.account_coverage,
			   classification_unit = excluded.classification_unit, overdue_balance = excluded.overdue_balance,
			   current_balance = excluded.current_balance, registered_at = excluded.registered_at,
			   last_assessed_at = excluded.last_assessed_at, updated_at = excluded.updated_at`,
			sheet.EmployerID, sheet.LegalName, sheet.TradeName, sheet.ActiveStatus,
			sheet.AccountCoverage, sheet.ClassificationUnit,
			sheet.OverdueBalance, sheet.CurrentAccountBalance,
			sheet.RegisteredAt, sheet.LastAssessedAt, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert fact sheet %s", sheet.EmployerID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(sheets), nil
}

func (s *SQLiteStore) GetFactSheet(ctx context.Context, employerID string) (*model.EmployerFactSheet, error) {
	row := s.db.QueryRowContext(ctx, factSheetSelect+` WHERE employer_id = ?`, employerID)

	sheet, err := scanFactSheet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get fact sheet %s", employerID)
	}
	return sheet, nil
}

func (s *SQLiteStore) ListFactSheets(ctx context.Context) ([]model.EmployerFactSheet, error) {
	rows, err := s.db.QueryContext(ctx, factSheetSelect+` ORDER BY employer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fact sheets")
	}
	defer rows.Close()

	var sheets []model.EmployerFactSheet
	for rows.Next() {
		sheet, err := scanFactSheet(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact sheet")
		}
		sheets = append(sheets, *sheet)
	}
	return sheets, eris.Wrap(rows.Err(), "sqlite: list fact sheets iterate")
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, key string, result model.AIAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (key, result, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET result = excluded.result, saved_at = excluded.saved_at`,
		key, string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save analysis %s", key)
}

func (s *SQLiteStore) LoadAnalysis(ctx context.Context, key string) (map[string]any, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM analysis_results WHERE key = ?`, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load analysis %s", key)
	}

	// Decode to a plain document so the original keys survive; stored
	// records may predate the current field naming.
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal analysis result")
	}
	return doc, nil
}

// helpers

const factSheetSelect = `SELECT employer_id, legal_name, trade_name, active_status, account_coverage,
	classification_unit, overdue_balance, current_balance, registered_at, last_assessed_at,
	created_at, updated_at FROM fact_sheets`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanApplication(row scannable) (*model.LicenseApplication, error) {
	var data string
	var status, adminNotes string
	var createdAt, updatedAt time.Time

	err := row.Scan(&data, &status, &adminNotes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("application not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan application")
	}

	var app model.LicenseApplication
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal application")
	}

	// Status, notes, and timestamps live in their own columns so updates
	// don't rewrite the JSON blob; the columns win on read.
	app.Status = model.ApplicationStatus(status)
	app.AdminNotes = adminNotes
	app.CreatedAt = createdAt
	app.UpdatedAt = updatedAt
	return &app, nil
}

func scanFactSheet(row scannable) (*model.EmployerFactSheet, error) {
	var sheet model.EmployerFactSheet
	var registeredAt, lastAssessedAt sql.NullTime

	err := row.Scan(
		&sheet.EmployerID, &sheet.LegalName, &sheet.TradeName, &sheet.ActiveStatus,
		&sheet.AccountCoverage, &sheet.ClassificationUnit,
		&sheet.OverdueBalance, &sheet.CurrentAccountBalance,
		&registeredAt, &lastAssessedAt,
		&sheet.CreatedAt, &sheet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if registeredAt.Valid {
		t := registeredAt.Time
		sheet.RegisteredAt = &t
	}
	if lastAssessedAt.Valid {
		t := lastAssessedAt.Time
		sheet.LastAssessedAt = &t
	}
	return &sheet, nil
}
