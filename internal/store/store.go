// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/lippe-assistant/internal/domain"
)

// Repository persists anonymous users and the exchange journal.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// RecordExchange appends one settled exchange.
	RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error

	// ExchangeStats aggregates exchanges finished at or after since.
	ExchangeStats(ctx context.Context, since time.Time) (*domain.ExchangeStats, error)

	// CleanupExchanges removes exchanges older than retention.
	CleanupExchanges(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
