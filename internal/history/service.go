// Package history persists finished download runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sensor0x0/Dromeport/internal/database"
)

// Entry is one recorded run.
type Entry struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"jobId"`
	Provider   string    `json:"provider"`
	URL        string    `json:"url"`
	Origin     string    `json:"origin"` // "manual" or "scheduled"
	Status     string    `json:"status"` // "success", "error" or "cancelled"
	Downloaded int       `json:"downloaded"`
	Errors     int       `json:"errors"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Service provides history storage operations.
type Service struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *database.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record inserts one finished run. Failures are reported but callers treat
// history as best-effort: a lost row never fails the run itself.
func (s *Service) Record(ctx context.Context, e Entry) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO job_history (job_id, provider, url, origin, status, downloaded, errors, skipped, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Provider, e.URL, e.Origin, e.Status, e.Downloaded, e.Errors, e.Skipped, e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, job_id, provider, url, origin, status, downloaded, errors, skipped, duration_ms, created_at
		FROM job_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.JobID, &e.Provider, &e.URL, &e.Origin, &e.Status,
			&e.Downloaded, &e.Errors, &e.Skipped, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Clear deletes all history entries and returns the number removed.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM job_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info().Int64("removed", n).Msg("History cleared")
	return n, nil
}
