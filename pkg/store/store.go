// Package store persists the diagnostic corpus, trouble-code records and
// recall records, in SQLite. It is the system of record the retrieval
// snapshot is rebuilt from.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// Store wraps the SQLite handle. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// modernc's driver serializes writes per connection; a single connection
	// avoids SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS dtc (
	code        TEXT PRIMARY KEY,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS recall (
	recall_id TEXT PRIMARY KEY,
	vin       TEXT NOT NULL DEFAULT '',
	date      TEXT NOT NULL DEFAULT '',
	summary   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_recall_vin ON recall(vin);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// UpsertDTCs inserts or replaces trouble-code records in one transaction.
func (s *Store) UpsertDTCs(ctx context.Context, docs []domain.DiagnosticDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO dtc (code, category, description) VALUES (?, ?, ?)
ON CONFLICT(code) DO UPDATE SET category = excluded.category, description = excluded.description`)
	if err != nil {
		return fmt.Errorf("store: prepare dtc upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.Type != domain.DocTypeDTC {
			return fmt.Errorf("store: upsert dtc: wrong document type %q", d.Type)
		}
		if _, err := stmt.ExecContext(ctx, d.Code, d.Category, d.Description); err != nil {
			return fmt.Errorf("store: upsert dtc %s: %w", d.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit dtc upsert: %w", err)
	}
	return nil
}

// UpsertRecalls inserts or replaces recall records in one transaction.
func (s *Store) UpsertRecalls(ctx context.Context, docs []domain.DiagnosticDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO recall (recall_id, vin, date, summary) VALUES (?, ?, ?, ?)
ON CONFLICT(recall_id) DO UPDATE SET vin = excluded.vin, date = excluded.date, summary = excluded.summary`)
	if err != nil {
		return fmt.Errorf("store: prepare recall upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.Type != domain.DocTypeRecall {
			return fmt.Errorf("store: upsert recall: wrong document type %q", d.Type)
		}
		if _, err := stmt.ExecContext(ctx, d.RecallID, d.VIN, d.Date, d.Summary); err != nil {
			return fmt.Errorf("store: upsert recall %s: %w", d.RecallID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit recall upsert: %w", err)
	}
	return nil
}

// GetDTC returns the record for a trouble code, or (nil, nil) when the code
// is unknown.
func (s *Store) GetDTC(ctx context.Context, code string) (*domain.DiagnosticDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT code, category, description FROM dtc WHERE code = ?`, code)

	doc := domain.DiagnosticDocument{Type: domain.DocTypeDTC}
	err := row.Scan(&doc.Code, &doc.Category, &doc.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get dtc %s: %w", code, err)
	}
	return &doc, nil
}

// GetRecalls returns all recalls recorded for a VIN, most recent first.
func (s *Store) GetRecalls(ctx context.Context, vin string) ([]domain.DiagnosticDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recall_id, vin, date, summary FROM recall WHERE vin = ? ORDER BY date DESC, recall_id`, vin)
	if err != nil {
		return nil, fmt.Errorf("store: list recalls for %s: %w", vin, err)
	}
	defer rows.Close()

	var out []domain.DiagnosticDocument
	for rows.Next() {
		doc := domain.DiagnosticDocument{Type: domain.DocTypeRecall}
		if err := rows.Scan(&doc.RecallID, &doc.VIN, &doc.Date, &doc.Summary); err != nil {
			return nil, fmt.Errorf("store: scan recall: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate recalls: %w", err)
	}
	return out, nil
}

// ListDocuments returns the full corpus, trouble codes first, in a stable
// order. The retrieval snapshot and the degraded keyword path both build on
// this.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.DiagnosticDocument, error) {
	var out []domain.DiagnosticDocument

	rows, err := s.db.QueryContext(ctx, `SELECT code, category, description FROM dtc ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("store: list dtcs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc := domain.DiagnosticDocument{Type: domain.DocTypeDTC}
		if err := rows.Scan(&doc.Code, &doc.Category, &doc.Description); err != nil {
			return nil, fmt.Errorf("store: scan dtc: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate dtcs: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT recall_id, vin, date, summary FROM recall ORDER BY recall_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list recalls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc := domain.DiagnosticDocument{Type: domain.DocTypeRecall}
		if err := rows.Scan(&doc.RecallID, &doc.VIN, &doc.Date, &doc.Summary); err != nil {
			return nil, fmt.Errorf("store: scan recall: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate recalls: %w", err)
	}
	return out, nil
}

// Counts reports corpus sizes for the health endpoint.
func (s *Store) Counts(ctx context.Context) (dtcs, recalls int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dtc`).Scan(&dtcs); err != nil {
		return 0, 0, fmt.Errorf("store: count dtcs: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recall`).Scan(&recalls); err != nil {
		return 0, 0, fmt.Errorf("store: count recalls: %w", err)
	}
	return dtcs, recalls, nil
}
