package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/lippe-assistant/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		request_id TEXT,
		question_length INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER,
		error TEXT,
		answer_length INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_finished ON exchanges(finished_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := withBusyRetry(ctx, "upsert_user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := withBusyRetry(ctx, "update_last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// RecordExchange appends one settled exchange.
func (s *SQLiteStore) RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error {
	query := `
	INSERT INTO exchanges (
		id, user_id, session_id, request_id, question_length, outcome,
		status_code, error, answer_length, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var statusCode any
	if rec.StatusCode != 0 {
		statusCode = rec.StatusCode
	}
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}

	err := withBusyRetry(ctx, "record_exchange", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.UserID, rec.SessionID, rec.RequestID, rec.QuestionLength, rec.Outcome,
			statusCode, errText, rec.AnswerLength,
			rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// ExchangeStats aggregates exchanges finished at or after since.
func (s *SQLiteStore) ExchangeStats(ctx context.Context, since time.Time) (*domain.ExchangeStats, error) {
	query := `
		SELECT outcome, COUNT(*), COALESCE(SUM(finished_at - started_at), 0)
		FROM exchanges WHERE finished_at >= ?
		GROUP BY outcome`

	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query exchange stats: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchange stats rows", "error", closeErr)
		}
	}()

	stats := &domain.ExchangeStats{ByOutcome: make(map[string]int64), Since: since}
	var totalMS int64
	for rows.Next() {
		var outcome string
		var count, durationMS int64
		if err := rows.Scan(&outcome, &count, &durationMS); err != nil {
			return nil, fmt.Errorf("scan exchange stats row: %w", err)
		}
		stats.ByOutcome[outcome] = count
		stats.Total += count
		totalMS += durationMS
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange stats: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgDurationMS = float64(totalMS) / float64(stats.Total)
	}
	return stats, nil
}

// CleanupExchanges removes exchanges older than retention.
func (s *SQLiteStore) CleanupExchanges(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()

	var deleted int64
	err := withBusyRetry(ctx, "cleanup_exchanges", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE finished_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup exchanges: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
