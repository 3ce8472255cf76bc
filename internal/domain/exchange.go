package domain

import (
	"time"
)

// ExchangeRecord is the persisted summary of one settled exchange.
// Question and answer text are not stored, only their lengths.
type ExchangeRecord struct {
	ID             string
	UserID         string
	SessionID      string
	RequestID      string
	QuestionLength int
	Outcome        string
	StatusCode     int
	Error          string
	AnswerLength   int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns how long the exchange was in flight.
func (r *ExchangeRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExchangeStats aggregates exchange records.
type ExchangeStats struct {
	Total         int64            `json:"total"`
	ByOutcome     map[string]int64 `json:"by_outcome"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
	Since         time.Time        `json:"since"`
}
