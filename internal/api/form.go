package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/lippe-assistant/internal/domain"
	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/go-chi/chi/v5"
)

const defaultStatsWindow = 24 * time.Hour

// StatsSource aggregates the exchange journal.
type StatsSource interface {
	ExchangeStats(ctx context.Context, since time.Time) (*domain.ExchangeStats, error)
}

// FormHandler exposes the tab's form over JSON.
type FormHandler struct {
	*Handler
	stats   StatsSource
	model   string
	overlap form.Overlap
}

// NewFormHandler creates a form handler. stats may be nil.
func NewFormHandler(base *Handler, stats StatsSource, model string, overlap form.Overlap) *FormHandler {
	return &FormHandler{Handler: base, stats: stats, model: model, overlap: overlap}
}

// RegisterRoutes registers the JSON form routes.
func (h *FormHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/state", h.GetState)
	r.Post("/api/draft", h.UpdateDraft)
	r.Post("/api/ask", h.Ask)
	r.Post("/api/cancel", h.Cancel)
	r.Get("/api/stats", h.GetStats)
}

type askRequest struct {
	Question *string `json:"question"`
	Wait     bool    `json:"wait"`
}

type askResponse struct {
	ExchangeID string    `json:"exchange_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	State      StateView `json:"state"`
}

// Ask submits a question. Without "question" the current draft is
// submitted. With "wait" the response is sent once the exchange settles.
func (h *FormHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := h.controller(r)
	question := c.Snapshot().Draft
	if req.Question != nil {
		question = *req.Question
	}

	task, err := c.Submit(r.Context(), question)
	var verr *form.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, askResponse{Error: verr.Message, State: h.view(c.Snapshot())})
		return
	case errors.Is(err, form.ErrExchangeInFlight):
		JSON(w, http.StatusConflict, askResponse{Error: err.Error(), State: h.view(c.Snapshot())})
		return
	case err != nil:
		slog.Error("Submit failed", "error", err, "user_id", identity.UserIDFromContext(r.Context()))
		Error(w, http.StatusInternalServerError, "submit failed")
		return
	}

	if !req.Wait {
		JSON(w, http.StatusAccepted, askResponse{ExchangeID: task.ID(), State: h.view(c.Snapshot())})
		return
	}

	outcome, err := task.Wait(r.Context())
	if err != nil {
		// The client went away; the exchange keeps running.
		return
	}
	JSON(w, http.StatusOK, askResponse{
		ExchangeID: task.ID(),
		Outcome:    string(outcome.Kind),
		State:      h.view(c.Snapshot()),
	})
}

// GetState returns the tab's current form state.
func (h *FormHandler) GetState(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.view(h.controller(r).Snapshot()))
}

// UpdateDraft replaces the draft question.
func (h *FormHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	JSON(w, http.StatusOK, h.view(h.controller(r).Edit(req.Text)))
}

// Cancel aborts the tab's in-flight exchanges.
func (h *FormHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	n := h.controller(r).Cancel()
	slog.Info("Exchange cancel requested",
		"user_id", identity.UserIDFromContext(r.Context()),
		"session_id", identity.SessionIDFromContext(r.Context()),
		"cancelled", n)
	JSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

// GetConfig returns the page copy and server settings for clients.
func (h *FormHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	overlap := "reject"
	if h.overlap == form.OverlapLastWriteWins {
		overlap = "last-write-wins"
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"title":            h.profile.Title,
		"greeting":         h.profile.Greeting,
		"placeholder":      h.profile.Placeholder,
		"question_heading": h.profile.QuestionHeading,
		"answer_heading":   h.profile.AnswerHeading,
		"submit_label":     h.profile.SubmitLabel,
		"busy_label":       h.profile.BusyLabel,
		"footer":           h.profile.Footer,
		"model":            h.model,
		"sanitize_answers": h.policy.Sanitizing(),
		"overlap_policy":   overlap,
	})
}

// GetStats aggregates exchanges over the window given by ?window=
// (a Go duration, default 24h).
func (h *FormHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		Error(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}

	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			Error(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	stats, err := h.stats.ExchangeStats(r.Context(), time.Now().Add(-window))
	if err != nil {
		slog.Error("Failed to load exchange stats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}
