package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tenantdesk/internal/events"
	"tenantdesk/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store keeps the local trail of attempted lifecycle transitions in SQLite.
// The backend owns booking state; this trail only records what this service
// asked for and how it went.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewStore(path string, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("audit store initialized")
	return &Store{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transitions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            action TEXT NOT NULL,
            outcome TEXT NOT NULL,
            detail TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_booking_id ON transitions(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_created_at ON transitions(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Record appends one audit entry.
func (s *Store) Record(ctx context.Context, entry *models.AuditEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (booking_id, action, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.BookingID, entry.Action, entry.Outcome, entry.Detail, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = models.DefaultAuditLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, booking_id, action, outcome, COALESCE(detail, ''), created_at
         FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HandleEvent is an event bus subscriber recording transition events.
func (s *Store) HandleEvent(event *events.Event) error {
	var payload events.TransitionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", event.Type).Msg("decode transition event")
		return err
	}

	entry := &models.AuditEntry{
		BookingID: payload.BookingID,
		Action:    payload.Action,
		Outcome:   payload.Outcome,
		Detail:    payload.Detail,
		CreatedAt: event.CreatedAt,
	}

	if err := s.Record(context.Background(), entry); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", payload.BookingID).Msg("record audit entry")
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
