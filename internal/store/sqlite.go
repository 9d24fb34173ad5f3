package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hejijunhao/statusreport/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company      TEXT NOT NULL,
	incident_key TEXT NOT NULL,
	category_id  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	revoked_at   TEXT
);
CREATE INDEX IF NOT EXISTS feedback_company ON feedback(company, incident_key);

CREATE TABLE IF NOT EXISTS datasets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company    TEXT NOT NULL,
	run_id     TEXT,
	payload    TEXT NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS datasets_company ON datasets(company, id);
`

// SQLite implements Store on a single SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
// The parent directory is created if missing. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SaveFeedback(ctx context.Context, entry model.TrainingFeedback) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (company, incident_key, category_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Company, entry.IncidentKey, entry.Category.ID, string(payload), entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// LoadFeedback returns every entry for company, revoked ones included, oldest first.
func (s *SQLite) LoadFeedback(ctx context.Context, company string) ([]model.TrainingFeedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, revoked_at FROM feedback WHERE company = ? ORDER BY id`, company)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []model.TrainingFeedback
	for rows.Next() {
		var payload string
		var revoked sql.NullString
		if err := rows.Scan(&payload, &revoked); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		var entry model.TrainingFeedback
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
		if revoked.Valid {
			t, err := time.Parse(time.RFC3339Nano, revoked.String)
			if err != nil {
				return nil, fmt.Errorf("decode revoked_at: %w", err)
			}
			entry.RevokedAt = &t
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// RevokeFeedback marks every active entry for the incident as revoked.
func (s *SQLite) RevokeFeedback(ctx context.Context, company, incidentKey string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET revoked_at = ? WHERE company = ? AND incident_key = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano), company, incidentKey)
	if err != nil {
		return fmt.Errorf("revoke feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feedback for %s/%s: %w", company, incidentKey, ErrNotFound)
	}
	return nil
}

func (s *SQLite) SaveDataset(ctx context.Context, ds *model.CompanyDataset) error {
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	fetched := ds.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (company, run_id, payload, fetched_at) VALUES (?, ?, ?, ?)`,
		ds.Company, ds.RunID, string(payload), fetched.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (s *SQLite) LoadPreviousDataset(ctx context.Context, company string) (*model.CompanyDataset, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM datasets WHERE company = ? ORDER BY id DESC LIMIT 1`, company).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	var ds model.CompanyDataset
	if err := json.Unmarshal([]byte(payload), &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}
