package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/ashureev/lippe-assistant/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const refreshSeconds = 1

// PageHandler serves the server-rendered assistant page.
type PageHandler struct {
	*Handler
	page *web.Page
}

// NewPageHandler creates a page handler.
func NewPageHandler(base *Handler, page *web.Page) *PageHandler {
	return &PageHandler{Handler: base, page: page}
}

// RegisterRoutes registers the page routes.
func (h *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Post("/ask", h.Ask)
	r.Handle("/static/*", web.StaticHandler())
}

// Index renders the form for the tab named by session_id. A request
// without one is redirected to a fresh tab session.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	if !identity.HasSessionID(r) {
		http.Redirect(w, r, tabURL(identity.NewSessionID()), http.StatusSeeOther)
		return
	}

	sessionID := identity.SessionIDFromContext(r.Context())
	s := h.controller(r).Snapshot()

	data := web.PageData{
		Title:           h.profile.Title,
		Placeholder:     h.profile.Placeholder,
		QuestionHeading: h.profile.QuestionHeading,
		AnswerHeading:   h.profile.AnswerHeading,
		SubmitLabel:     h.profile.SubmitLabel,
		BusyLabel:       h.profile.BusyLabel,
		Footer:          h.profile.Footer,
		SessionID:       sessionID,
		Draft:           s.Draft,
		LastAsked:       s.LastAsked,
		Answer:          h.policy.HTML(s.Answer),
		Error:           s.Error,
		InFlight:        s.InFlight,
		RefreshSeconds:  refreshSeconds,
	}
	if err := h.page.Render(w, http.StatusOK, data); err != nil {
		slog.Error("Failed to render page", "error", err, "session_id", sessionID)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

// Ask submits the posted question and redirects back to the page.
func (h *PageHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if !identity.HasSessionID(r) {
		sessionID = identity.NewSessionID()
	}

	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form body")
		return
	}

	c := h.sessions.Get(userID, sessionID)
	_, err := c.Submit(r.Context(), r.PostFormValue("question"))

	var verr *form.ValidationError
	switch {
	case err == nil, errors.As(err, &verr):
		// Validation failures are already reflected in the form state.
	case errors.Is(err, form.ErrExchangeInFlight):
		slog.Info("Submission ignored, exchange in flight",
			"user_id", userID,
			"session_id", sessionID,
			"request_id", chiMiddleware.GetReqID(r.Context()))
	default:
		slog.Error("Submit failed", "error", err, "user_id", userID, "session_id", sessionID)
	}

	http.Redirect(w, r, tabURL(sessionID), http.StatusSeeOther)
}

func tabURL(sessionID string) string {
	return "/?" + url.Values{identity.SessionQueryParam: {sessionID}}.Encode()
}
