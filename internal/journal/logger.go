// Package journal records settled exchanges to the store and to an
// optional per-session NDJSON log.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// LogConfig configures the NDJSON exchange log.
type LogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one NDJSON line.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	ExchangeID string    `json:"exchange_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Question   string    `json:"question"`
	ContentRaw string    `json:"content_raw,omitempty"`
	Content    string    `json:"content,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Logger accepts events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

var (
	pathSafe   = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	whitespace = regexp.MustCompile(`\s+`)
	strict     = bluemonday.StrictPolicy()
)

// FileLogger appends events to <dir>/<user>/<session>.ndjson from a single
// background goroutine.
type FileLogger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewLogger returns a FileLogger, or a no-op logger when disabled.
func NewLogger(cfg LogConfig, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return NewNoopLogger(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create exchange log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	l.wg.Add(1)
	go l.process()
	return l, nil
}

// Log queues e. When the queue is full the event is dropped and a warning
// logged.
func (l *FileLogger) Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Content == "" && e.ContentRaw != "" {
		e.Content = cleanForReadability(e.ContentRaw)
	}

	select {
	case <-l.ctx.Done():
	case l.queue <- e:
	default:
		l.logger.Warn("Exchange log queue full, dropping event",
			"user_id", e.UserID,
			"exchange_id", e.ExchangeID,
			"queue_len", len(l.queue))
	}
}

// Close drains queued events and stops the writer.
func (l *FileLogger) Close() error {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
	})
	return nil
}

func (l *FileLogger) process() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-l.ctx.Done():
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *FileLogger) write(e Event) {
	path := l.pathFor(e.UserID, e.SessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		l.logger.Error("Failed to create exchange log directory", "path", path, "error", err)
		return
	}

	line, err := json.Marshal(e)
	if err != nil {
		l.logger.Error("Failed to encode exchange log event", "exchange_id", e.ExchangeID, "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Error("Failed to open exchange log", "path", path, "error", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("Failed to close exchange log", "path", path, "error", closeErr)
		}
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Error("Failed to write exchange log", "path", path, "error", err)
	}
}

func (l *FileLogger) pathFor(userID, sessionID string) string {
	return filepath.Join(l.dir, safeName(userID, "unknown-user"), safeName(sessionID, "default")+".ndjson")
}

func safeName(s, fallback string) string {
	s = pathSafe.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}

// cleanForReadability strips markup and collapses whitespace.
func cleanForReadability(raw string) string {
	text := strict.Sanitize(raw)
	return whitespace.ReplaceAllString(text, " ")
}
