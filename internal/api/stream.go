package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// StreamHandler pushes the tab's form state over a WebSocket after every
// transition.
type StreamHandler struct {
	*Handler
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new state stream handler.
func NewStreamHandler(base *Handler, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{Handler: base, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := h.controller(r)
	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	// Clients only listen; CloseRead cancels ctx when they disconnect.
	ctx := ws.CloseRead(r.Context())

	slog.Info("State stream opened", "user_id", userID, "session_id", sessionID)
	if err := h.write(ctx, ws, h.view(c.Snapshot())); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("State stream closed", "user_id", userID, "session_id", sessionID)
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, h.view(s)); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("State stream write failed", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, ws *websocket.Conn, v StateView) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
