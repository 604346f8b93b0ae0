package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pacificworks/licensing-portal/internal/db"
	"github.com/pacificworks/licensing-portal/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_application": `INSERT INTO applications (id, data, status, admin_notes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_application":    `SELECT data, status, admin_notes, created_at, updated_at FROM applications WHERE id = $1`,
	"update_app_status":  `UPDATE applications SET status = $1, admin_notes = $2, updated_at = $3 WHERE id = $4`,
	"get_fact_sheet":     factSheetSelect + ` WHERE employer_id = $1`,
	"save_analysis":      `INSERT INTO analysis_results (key, result, saved_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET result = $2, saved_at = $3`,
	"load_analysis":      `SELECT result FROM analysis_results WHERE key = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests pass a pgxmock pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS applications (
	id          TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	admin_notes TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fact_sheets (
	employer_id         TEXT PRIMARY KEY,
	legal_name          TEXT NOT NULL,
	trade_name          TEXT NOT NULL DEFAULT '',
	active_status       TEXT NOT NULL DEFAULT '',
	account_coverage    TEXT NOT NULL DEFAULT '',
	classification_unit TEXT NOT NULL DEFAULT '',
	overdue_balance     DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_balance     DOUBLE PRECISION NOT NULL DEFAULT 0,
	registered_at       TIMESTAMPTZ,
	last_assessed_at    TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_results (
	key      TEXT PRIMARY KEY,
	result   JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_fact_sheets_legal_name ON fact_sheets(legal_name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, app *model.LicenseApplication) (*model.LicenseApplication, error) {
	if app == nil {
		return nil, eris.New("postgres: nil application")
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
		return nil, eris.Wrap(err, "postgres: marshal application")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO applications (id, data, status, admin_notes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, data, string(stored.Status), stored.AdminNotes, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert application")
	}
	return &stored, nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*model.LicenseApplication, error) {
	var data []byte
	var status, adminNotes string
	var createdAt, updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT data, status, admin_notes, created_at, updated_at FROM applications WHERE id = $1`,
		id,
	).Scan(&data, &status, &adminNotes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("application not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get application %s", id)
	}

	return decodeApplication(data, status, adminNotes, createdAt, updatedAt)
}

func (s *PostgresStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.LicenseApplication, error) {
	query := `SELECT data, status, admin_notes, created_at, updated_at FROM applications WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list applications")
	}
	defer rows.Close()

	var apps []model.LicenseApplication
	for rows.Next() {
		var data []byte
		var status, adminNotes string
		var createdAt, updatedAt time.Time

		if err := rows.Scan(&data, &status, &adminNotes, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan application")
		}
		app, err := decodeApplication(data, status, adminNotes, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, eris.Wrap(rows.Err(), "postgres: list applications iterate")
}

func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus, adminNotes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET status = $1, admin_notes = $2, updated_at = $3 WHERE id = $4`,
		string(status), adminNotes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update application status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("application not found: %s", id)
	}
	return nil
}

// UpsertFactSheets loads a registry extract through a temp-table bulk
// upsert, so re-importing the same roster is idempotent.
func (s *PostgresStore) UpsertFactSheets(ctx context.Context, sheets []model.EmployerFactSheet) (int, error) {
	if len(sheets) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(sheets))
	for _, sheet := range sheets {
		if sheet.EmployerID == "" {
			return 0, eris.New("postgres: fact sheet missing employer id")
		}
		rows = append(rows, []any{
			sheet.EmployerID, sheet.LegalName, sheet.TradeName, sheet.ActiveStatus,
			sheet.AccountCoverage, sheet.ClassificationUnit,
			sheet.OverdueBalance, sheet.CurrentAccountBalance,
			sheet.RegisteredAt, sheet.LastAssessedAt, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "fact_sheets",
		Columns: []string{
			"employer_id", "legal_name", "trade_name", "active_status",
			"account_coverage", "classification_unit",
			"overdue_balance", "current_balance",
			"registered_at", "last_assessed_at", "created_at", "updated_at",
		},
		ConflictKeys: []string{"employer_id"},
		UpdateCols: []string{
			"legal_name", "trade_name", "active_status", "account_coverage",
			"classification_unit", "overdue_balance", "current_balance",
			"registered_at", "last_assessed_at", "updated_at",
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert fact sheets")
	}
	return int(n), nil
}

func (s *PostgresStore) GetFactSheet(ctx context.Context, employerID string) (*model.EmployerFactSheet, error) {
	row := s.pool.QueryRow(ctx, factSheetSelect+` WHERE employer_id = $1`, employerID)

	sheet, err := scanFactSheet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get fact sheet %s", employerID)
	}
	return sheet, nil
}

func (s *PostgresStore) ListFactSheets(ctx context.Context) ([]model.EmployerFactSheet, error) {
	rows, err := s.pool.Query(ctx, factSheetSelect+` ORDER BY employer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fact sheets")
	}
	defer rows.Close()

	var sheets []model.EmployerFactSheet
	for rows.Next() {
		sheet, err := scanFactSheet(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact sheet")
		}
		sheets = append(sheets, *sheet)
	}
	return sheets, eris.Wrap(rows.Err(), "postgres: list fact sheets iterate")
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, key string, result model.AIAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_results (key, result, saved_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET result = $2, saved_at = $3`,
		key, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save analysis %s", key)
}

func (s *PostgresStore) LoadAnalysis(ctx context.Context, key string) (map[string]any, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM analysis_results WHERE key = $1`, key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load analysis %s", key)
	}

	// Decode to a plain document so the original keys survive; stored
	// records may predate the current field naming.
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analysis result")
	}
	return doc, nil
}

func decodeApplication(data []byte, status, adminNotes string, createdAt, updatedAt time.Time) (*model.LicenseApplication, error) {
	var app model.LicenseApplication
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal application")
	}
	app.Status = model.ApplicationStatus(status)
	app.AdminNotes = adminNotes
	app.CreatedAt = createdAt
	app.UpdatedAt = updatedAt
	return &app, nil
}
