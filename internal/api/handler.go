// Package api provides HTTP handlers for the Lippe assistant.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/ashureev/lippe-assistant/internal/prompt"
	"github.com/ashureev/lippe-assistant/internal/render"
	"github.com/ashureev/lippe-assistant/internal/session"
)

// Handler provides common handler utilities.
type Handler struct {
	sessions *session.Registry
	profile  *prompt.Profile
	policy   *render.Policy
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *session.Registry, profile *prompt.Profile, policy *render.Policy) *Handler {
	return &Handler{
		sessions: sessions,
		profile:  profile,
		policy:   policy,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StateView is the JSON form of a tab's form state. Answer is the
// rendered markup, after the render policy.
type StateView struct {
	Draft      string `json:"draft"`
	LastAsked  string `json:"last_asked"`
	Answer     string `json:"answer"`
	Error      string `json:"error,omitempty"`
	InFlight   bool   `json:"in_flight"`
	Phase      string `json:"phase"`
	ExchangeID string `json:"exchange_id,omitempty"`
	Version    uint64 `json:"version"`
}

func (h *Handler) view(s form.State) StateView {
	return StateView{
		Draft:      s.Draft,
		LastAsked:  s.LastAsked,
		Answer:     string(h.policy.HTML(s.Answer)),
		Error:      s.Error,
		InFlight:   s.InFlight,
		Phase:      string(s.Phase),
		ExchangeID: s.ExchangeID,
		Version:    s.Version,
	}
}

// controller returns the form controller for the request's tab session.
func (h *Handler) controller(r *http.Request) *form.Controller {
	ctx := r.Context()
	return h.sessions.Get(identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}
