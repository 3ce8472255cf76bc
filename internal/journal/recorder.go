package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/lippe-assistant/internal/domain"
	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/gemini"
)

const recordTimeout = 5 * time.Second

// Sink persists exchange records.
type Sink interface {
	RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error
}

// Recorder turns settled exchanges into store rows and log events.
type Recorder struct {
	sink   Sink
	log    Logger
	logger *slog.Logger
}

// NewRecorder creates a recorder. sink and log may be nil.
func NewRecorder(sink Sink, log Logger, logger *slog.Logger) *Recorder {
	if log == nil {
		log = NewNoopLogger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, log: log, logger: logger}
}

// Hook returns a settle hook bound to one tab session.
func (r *Recorder) Hook(userID, sessionID string) form.SettleHook {
	return func(o form.Outcome) {
		rec := NewRecord(userID, sessionID, o)

		if r.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			if err := r.sink.RecordExchange(ctx, rec); err != nil {
				r.logger.Error("Failed to record exchange", "exchange_id", rec.ID, "user_id", userID, "error", err)
			}
			cancel()
		}

		r.log.Log(Event{
			Timestamp:  o.FinishedAt.UTC(),
			UserID:     userID,
			SessionID:  sessionID,
			ExchangeID: o.ExchangeID,
			RequestID:  o.RequestID,
			Outcome:    string(o.Kind),
			Question:   o.Question,
			ContentRaw: string(o.Answer),
			Error:      rec.Error,
			DurationMS: o.Duration().Milliseconds(),
		})
	}
}

// NewRecord builds the persisted summary of o.
func NewRecord(userID, sessionID string, o form.Outcome) *domain.ExchangeRecord {
	rec := &domain.ExchangeRecord{
		ID:             o.ExchangeID,
		UserID:         userID,
		SessionID:      sessionID,
		RequestID:      o.RequestID,
		QuestionLength: len(o.Question),
		Outcome:        string(o.Kind),
		AnswerLength:   len(o.Answer),
		StartedAt:      o.StartedAt,
		FinishedAt:     o.FinishedAt,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
		var apiErr *gemini.APIError
		if errors.As(o.Err, &apiErr) {
			rec.StatusCode = apiErr.StatusCode
		}
	}
	return rec
}
