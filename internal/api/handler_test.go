//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lippe-assistant/internal/domain"
	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/ashureev/lippe-assistant/internal/prompt"
	"github.com/ashureev/lippe-assistant/internal/render"
	"github.com/ashureev/lippe-assistant/internal/session"
	"github.com/ashureev/lippe-assistant/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeRepo) ExchangeStats(_ context.Context, since time.Time) (*domain.ExchangeStats, error) {
	return &domain.ExchangeStats{Total: 3, ByOutcome: map[string]int64{"answered": 3}, Since: since}, nil
}

// gateGenerator answers with text once release is closed, or immediately
// when release is nil.
type gateGenerator struct {
	text    string
	release chan struct{}
}

func (g *gateGenerator) Generate(ctx context.Context, _ string) (string, bool, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return g.text, true, nil
}

type testEnv struct {
	server   *httptest.Server
	repo     *fakeRepo
	sessions *session.Registry
}

func newTestEnv(t *testing.T, gen form.Generator, sanitize bool) *testEnv {
	t.Helper()

	profile, err := prompt.Default()
	require.NoError(t, err)
	page, err := web.NewPage()
	require.NoError(t, err)

	repo := newFakeRepo()
	sessions := session.NewRegistry(func(_, _ string) *form.Controller {
		return form.NewController(gen, profile, profile.Greeting)
	}, time.Hour, nil)

	base := NewHandler(sessions, profile, render.NewPolicy(sanitize))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(identity.Middleware(repo, true))
	NewHealthHandler(repo, sessions).RegisterHealth(r)
	NewPageHandler(base, page).RegisterRoutes(r)
	NewFormHandler(base, repo, "gemini-test", form.OverlapReject).RegisterRoutes(r)
	r.Get("/ws/state", NewStreamHandler(base, "*", true).ServeHTTP)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		sessions.Close()
	})
	return &testEnv{server: server, repo: repo, sessions: sessions}
}

func newClient(t *testing.T, followRedirects bool) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: waitTimeout}
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func doJSON(t *testing.T, client *http.Client, method, url, sessionID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.SessionHeaderName, sessionID)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return resp.StatusCode, got
}

func stateOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	state, ok := body["state"].(map[string]interface{})
	require.True(t, ok, "response has no state: %v", body)
	return state
}

func waitSettled(t *testing.T, env *testEnv, client *http.Client, sessionID string) map[string]interface{} {
	t.Helper()
	var last map[string]interface{}
	require.Eventually(t, func() bool {
		_, last = doJSON(t, client, http.MethodGet, env.server.URL+"/api/state", sessionID, nil)
		return last["in_flight"] == false
	}, waitTimeout, 10*time.Millisecond)
	return last
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "exchange already in flight")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"exchange already in flight"}`, w.Body.String())
}

func TestIndexRedirectsToFreshSession(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "x"}, true)
	client := newClient(t, false)

	resp, err := client.Get(env.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("session_id"))
}

func TestIndexRendersGreeting(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "x"}, true)
	client := newClient(t, true)

	resp, err := client.Get(env.server.URL + "/?session_id=tab-1")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Bad Lippspringe AI Assistant")
	assert.Contains(t, string(body), "Ask me anything about Bad Lippspringe!")
	assert.Contains(t, string(body), `action="/ask?session_id=tab-1"`)
}

func TestAskPostRedirectGet(t *testing.T) {
	gen := &gateGenerator{text: `<b>Hallo</b><script>alert(1)</script>`, release: make(chan struct{})}
	env := newTestEnv(t, gen, true)
	client := newClient(t, true)

	resp, err := client.PostForm(env.server.URL+"/ask?session_id=tab-1", url.Values{"question": {"Wo ist der Kurpark?"}})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tab-1", resp.Request.URL.Query().Get("session_id"))
	page := string(body)
	assert.Contains(t, page, `http-equiv="refresh"`)
	assert.Contains(t, page, "Processing...")
	assert.Contains(t, page, "Wo ist der Kurpark?")

	close(gen.release)
	waitSettled(t, env, client, "tab-1")

	resp, err = client.Get(env.server.URL + "/?session_id=tab-1")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	page = string(body)
	assert.Contains(t, page, "<b>Hallo</b>")
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.NotContains(t, page, `http-equiv="refresh"`)
}

func TestDraftTypedDuringExchangeSurvivesRender(t *testing.T) {
	gen := &gateGenerator{text: "Antwort", release: make(chan struct{})}
	env := newTestEnv(t, gen, true)
	client := newClient(t, true)

	resp, err := client.PostForm(env.server.URL+"/ask?session_id=tab-1", url.Values{"question": {"Wo ist der Kurpark?"}})
	require.NoError(t, err)
	resp.Body.Close()

	status, state := doJSON(t, client, http.MethodPost, env.server.URL+"/api/draft", "tab-1", map[string]string{"text": "Und die Therme?"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, state["in_flight"])

	readPage := func() string {
		resp, err := client.Get(env.server.URL + "/?session_id=tab-1")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return string(body)
	}

	page := readPage()
	assert.Contains(t, page, ">Und die Therme?</textarea>")
	assert.Contains(t, page, `<noscript><meta http-equiv="refresh"`)

	close(gen.release)
	waitSettled(t, env, client, "tab-1")

	page = readPage()
	assert.Contains(t, page, ">Und die Therme?</textarea>", "settling keeps the draft")
	assert.Contains(t, page, "Antwort")
}

func TestAskBlankShowsValidationMessage(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "x"}, true)
	client := newClient(t, true)

	resp, err := client.PostForm(env.server.URL+"/ask?session_id=tab-1", url.Values{"question": {"   "}})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Contains(t, string(body), form.MsgEmptyQuestion)
	assert.NotContains(t, string(body), `http-equiv="refresh"`)
}

func TestAskWithoutSessionMintsOne(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "x"}, true)
	client := newClient(t, false)

	resp, err := client.PostForm(env.server.URL+"/ask", url.Values{"question": {"hi"}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/?session_id="))
}

func TestAPIAskStatusCodes(t *testing.T) {
	gen := &gateGenerator{text: "Antwort", release: make(chan struct{})}
	env := newTestEnv(t, gen, true)
	client := newClient(t, true)
	askURL := env.server.URL + "/api/ask"

	code, body := doJSON(t, client, http.MethodPost, askURL, "tab-1", map[string]interface{}{"question": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, form.MsgEmptyQuestion, body["error"])

	code, body = doJSON(t, client, http.MethodPost, askURL, "tab-1", map[string]interface{}{"question": "first"})
	assert.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body["exchange_id"])
	state := stateOf(t, body)
	assert.Equal(t, true, state["in_flight"])
	assert.Equal(t, "first", state["last_asked"])
	assert.Equal(t, "", state["answer"])

	code, body = doJSON(t, client, http.MethodPost, askURL, "tab-1", map[string]interface{}{"question": "second"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "first", stateOf(t, body)["last_asked"])

	// Another tab is independent.
	code, _ = doJSON(t, client, http.MethodPost, askURL, "tab-2", map[string]interface{}{"question": "other"})
	assert.Equal(t, http.StatusAccepted, code)

	close(gen.release)
	waitSettled(t, env, client, "tab-1")

	code, body = doJSON(t, client, http.MethodPost, askURL, "tab-1", map[string]interface{}{"question": "third", "wait": true})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "answered", body["outcome"])
	assert.Equal(t, "Antwort", stateOf(t, body)["answer"])
}

func TestAPIDraftThenAskSubmitsDraft(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "ok"}, true)
	client := newClient(t, true)

	code, body := doJSON(t, client, http.MethodPost, env.server.URL+"/api/draft", "tab-1", map[string]string{"text": "Thermalbad?"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Thermalbad?", body["draft"])

	code, body = doJSON(t, client, http.MethodPost, env.server.URL+"/api/ask", "tab-1", map[string]interface{}{"wait": true})
	assert.Equal(t, http.StatusOK, code)
	state := stateOf(t, body)
	assert.Equal(t, "Thermalbad?", state["last_asked"])
	assert.Equal(t, "", state["draft"])
	assert.Equal(t, "ok", state["answer"])
}

func TestAPIAskRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "ok"}, true)
	client := newClient(t, true)

	resp, err := client.Post(env.server.URL+"/api/ask", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPICancel(t *testing.T) {
	gen := &gateGenerator{text: "never", release: make(chan struct{})}
	env := newTestEnv(t, gen, true)
	client := newClient(t, true)

	code, _ := doJSON(t, client, http.MethodPost, env.server.URL+"/api/ask", "tab-1", map[string]string{"question": "slow"})
	require.Equal(t, http.StatusAccepted, code)

	code, body := doJSON(t, client, http.MethodPost, env.server.URL+"/api/cancel", "tab-1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["cancelled"])

	state := waitSettled(t, env, client, "tab-1")
	assert.Contains(t, state["error"], "context canceled")
	assert.Equal(t, form.MsgFailedAnswer, state["answer"])
}

func TestAPIConfig(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "ok"}, false)
	client := newClient(t, true)

	code, body := doJSON(t, client, http.MethodGet, env.server.URL+"/api/config", "tab-1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bad Lippspringe AI Assistant", body["title"])
	assert.Equal(t, "gemini-test", body["model"])
	assert.Equal(t, false, body["sanitize_answers"])
	assert.Equal(t, "reject", body["overlap_policy"])
}

func TestAPIStats(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "ok"}, true)
	client := newClient(t, true)

	code, body := doJSON(t, client, http.MethodGet, env.server.URL+"/api/stats?window=1h", "tab-1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])

	code, _ = doJSON(t, client, http.MethodGet, env.server.URL+"/api/stats?window=soon", "tab-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &gateGenerator{text: "ok"}, true)
	client := newClient(t, true)

	code, body := doJSON(t, client, http.MethodGet, env.server.URL+"/api/health", "tab-1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	env.repo.mu.Lock()
	env.repo.pingErr = errors.New("database is closed")
	env.repo.mu.Unlock()

	code, body = doJSON(t, client, http.MethodGet, env.server.URL+"/api/health", "tab-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}
