package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/rhythm/internal/master/domain"
	"github.com/cuongbtq/rhythm/internal/protocol"
	"github.com/cuongbtq/rhythm/shared/database"
	"github.com/jmoiron/sqlx"
)

var schemas = map[string]string{
	database.DriverSQLite: `
		CREATE TABLE IF NOT EXISTS videos (
			pk             INTEGER PRIMARY KEY AUTOINCREMENT,
			uid            TEXT UNIQUE,
			link           TEXT,
			title          TEXT,
			author         TEXT,
			duration       INTEGER,
			description    TEXT,
			thumbnail_path TEXT,
			date           INTEGER,
			other          BLOB
		)`,
	database.DriverPostgres: `
		CREATE TABLE IF NOT EXISTS videos (
			pk             BIGSERIAL PRIMARY KEY,
			uid            TEXT UNIQUE,
			link           TEXT,
			title          TEXT,
			author         TEXT,
			duration       BIGINT,
			description    TEXT,
			thumbnail_path TEXT,
			date           BIGINT,
			other          BYTEA
		)`,
}

// Storage is the dedup store of completed jobs
type Storage struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, driver string, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		driver: driver,
		logger: logger,
		now:    time.Now,
	}
}

// Migrate creates the videos table when missing
func (s *Storage) Migrate(ctx context.Context) error {
	schema, ok := schemas[s.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", s.driver)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create videos table: %w", err)
	}
	return nil
}

// CompletedIDs returns the set of uids recorded by previous runs
func (s *Storage) CompletedIDs(ctx context.Context) (map[protocol.JobID]struct{}, error) {
	var uids []string
	if err := s.db.SelectContext(ctx, &uids, `SELECT uid FROM videos WHERE uid IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("failed to load completed ids: %w", err)
	}

	completed := make(map[protocol.JobID]struct{}, len(uids))
	for _, uid := range uids {
		completed[uid] = struct{}{}
	}

	s.logger.Debug("Loaded completed ids", slog.Int("count", len(completed)))
	return completed, nil
}

// RecordCompletion inserts rec unless its uid is already present
func (s *Storage) RecordCompletion(ctx context.Context, rec *domain.CompletionRecord) (domain.InsertResult, error) {
	if rec.Date == 0 {
		rec.Date = s.now().Unix()
	}

	query := `
		INSERT INTO videos (uid, link, title, author, duration, description, date)
		VALUES (:uid, :link, :title, :author, :duration, :description, :date)
		ON CONFLICT (uid) DO NOTHING
	`

	result, err := s.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return domain.Recorded, fmt.Errorf("failed to record completion of %s: %w", rec.UID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Recorded, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("Completion already recorded", slog.String("uid", rec.UID))
		return domain.AlreadyRecorded, nil
	}

	s.logger.Info("Completion recorded",
		slog.String("uid", rec.UID),
		slog.String("title", rec.Title),
	)
	return domain.Recorded, nil
}
