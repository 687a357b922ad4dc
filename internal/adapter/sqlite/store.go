// Package sqlite persists subscriber registrations in a local sqlite file.
// Schema changes ship as embedded goose migrations and run on startup.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/ondamlab/yesterday/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a subscriber id has no row.
var ErrNotFound = errors.New("subscriber not found")

// Store is the sqlite-backed subscriber repository.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New opens (or creates) the database file and applies pending migrations.
func New(path string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Upsert validates and saves a subscriber, replacing any existing row with
// the same id.
func (s *Store) Upsert(ctx context.Context, sub *domain.Subscriber) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO subscribers (id, token, lat, lon, timezone, hour, minute)
		VALUES (:id, :token, :lat, :lon, :timezone, :hour, :minute)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			lat = excluded.lat,
			lon = excluded.lon,
			timezone = excluded.timezone,
			hour = excluded.hour,
			minute = excluded.minute`, sub)
	if err != nil {
		return fmt.Errorf("upsert subscriber %s: %w", sub.ID, err)
	}
	return nil
}

// Get returns one subscriber by id.
func (s *Store) Get(ctx context.Context, id string) (domain.Subscriber, error) {
	var sub domain.Subscriber
	err := s.db.GetContext(ctx, &sub, "SELECT * FROM subscribers WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subscriber{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("get subscriber %s: %w", id, err)
	}
	return sub, nil
}

// Delete removes a subscriber by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM subscribers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete subscriber %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListSubscribers returns every valid subscriber. Rows that fail validation
// are logged and skipped so one bad record cannot stall the scheduler.
func (s *Store) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	var rows []domain.Subscriber
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM subscribers ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	valid := rows[:0]
	for _, sub := range rows {
		if err := sub.Validate(); err != nil {
			s.logger.Warn("skipping invalid subscriber row", "subscriber", sub.ID, "error", err)
			continue
		}
		valid = append(valid, sub)
	}
	return valid, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
