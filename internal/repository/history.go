// Package repository persists the extraction history: one row per
// request with its outcome summary, kept in an embedded SQLite database
// so a single binary needs no external services.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_history (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMP NOT NULL,
	filename         TEXT NOT NULL,
	format           TEXT NOT NULL,
	requested_method TEXT NOT NULL,
	method_used      TEXT NOT NULL,
	field_count      INTEGER NOT NULL,
	warnings         TEXT NOT NULL,
	duration_ms      INTEGER NOT NULL,
	success          INTEGER NOT NULL,
	error_code       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON extraction_history (created_at DESC);
`

// Entry is one recorded extraction request.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Filename        string    `json:"filename"`
	Format          string    `json:"format"`
	RequestedMethod string    `json:"requested_method"`
	MethodUsed      string    `json:"method_used"`
	FieldCount      int       `json:"field_count"`
	Warnings        []string  `json:"warnings"`
	DurationMS      int64     `json:"duration_ms"`
	Success         bool      `json:"success"`
	ErrorCode       string    `json:"error_code,omitempty"`
}

// HistoryRepository records extraction requests and lists recent ones.
type HistoryRepository interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

type historyRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenHistory opens (creating if needed) the SQLite history database.
func OpenHistory(ctx context.Context, path string, logger *slog.Logger) (HistoryRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The driver serializes writes itself; one connection avoids
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("history database ready", "path", path)
	return &historyRepo{db: db, log: logger}, nil
}

func (r *historyRepo) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	warnings, err := json.Marshal(e.Warnings)
	if err != nil {
		warnings = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extraction_history
			(id, created_at, filename, format, requested_method, method_used,
			 field_count, warnings, duration_ms, success, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.CreatedAt, e.Filename, e.Format, e.RequestedMethod,
		e.MethodUsed, e.FieldCount, string(warnings), e.DurationMS, e.Success, e.ErrorCode,
	)
	if err != nil {
		r.log.Error("history record failed", "id", e.ID, "err", err)
		return err
	}
	r.log.Debug("history recorded", "id", e.ID, "filename", e.Filename, "success", e.Success)
	return nil
}

func (r *historyRepo) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, filename, format, requested_method, method_used,
		       field_count, warnings, duration_ms, success, error_code
		FROM extraction_history
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil {
			r.log.Warn("history rows close failed", "err", cErr)
		}
	}()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id, warnings string
		if err := rows.Scan(&id, &e.CreatedAt, &e.Filename, &e.Format,
			&e.RequestedMethod, &e.MethodUsed, &e.FieldCount, &warnings,
			&e.DurationMS, &e.Success, &e.ErrorCode); err != nil {
			return nil, err
		}
		e.ID, _ = uuid.Parse(id)
		if err := json.Unmarshal([]byte(warnings), &e.Warnings); err != nil {
			e.Warnings = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *historyRepo) Close() error { return r.db.Close() }

// NopHistory is used when no history path is configured.
type NopHistory struct{}

func (NopHistory) Record(context.Context, Entry) error        { return nil }
func (NopHistory) List(context.Context, int) ([]Entry, error) { return nil, nil }
func (NopHistory) Close() error                               { return nil }
