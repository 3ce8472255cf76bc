package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "gemini-2.0-flash",
		Generation: DefaultGenerationConfig(),
		HTTPClient: server.Client(),
	}, nil)
}

func TestGenerateSendsExpectedRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		contents := payload["contents"].([]any)
		require.Len(t, contents, 1)
		turn := contents[0].(map[string]any)
		assert.Equal(t, "user", turn["role"])
		parts := turn["parts"].([]any)
		require.Len(t, parts, 1)
		assert.Equal(t, "What is Bad Lippspringe known for?", parts[0].(map[string]any)["text"])

		gen := payload["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.7, gen["temperature"], 1e-9)
		assert.InDelta(t, 0.95, gen["topP"], 1e-9)
		assert.InDelta(t, 40, gen["topK"], 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}`))
	})

	text, ok, err := client.Generate(context.Background(), "What is Bad Lippspringe known for?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", text)
}

func TestGenerateEmptyKeyIsStillSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["key"]
		assert.True(t, present, "key parameter should be present even when empty")
		assert.Equal(t, "", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()}, nil)
	_, ok, err := client.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateMissingTextPathIsNotAnError(t *testing.T) {
	bodies := map[string]string{
		"no candidates":     `{}`,
		"empty candidates":  `{"candidates":[]}`,
		"no content":        `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"no parts":          `{"candidates":[{"content":{"parts":[]}}]}`,
		"part without text": `{"candidates":[{"content":{"parts":[{}]}}]}`,
		"candidates string": `{"candidates":"oops"}`,
		"numeric text":      `{"candidates":[{"content":{"parts":[{"text":5}]}}]}`,
		"top-level array":   `[]`,
		"content array":     `{"candidates":[{"content":[]}]}`,
		"null body":         `null`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			text, ok, err := client.Generate(context.Background(), "q")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, text)
		})
	}
}

func TestGenerateIgnoresSiblingsOfTheTextPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Kurpark"},{"text":7}]}},"x"],"usageMetadata":1}`))
	})
	text, ok, err := client.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Kurpark", text)
}

func TestGenerateNon2xxExtractsErrorMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	_, _, err := client.Generate(context.Background(), "q")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "quota exceeded", apiErr.Message)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateNon2xxWithoutMessageFallsBack(t *testing.T) {
	for name, body := range map[string]string{
		"no error field": `{"detail":"nope"}`,
		"not json":       `<html>bad gateway</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(body))
			})

			_, _, err := client.Generate(context.Background(), "q")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "Unknown error", apiErr.Message)
		})
	}
}

func TestGenerateMalformedSuccessBodyIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, _, err := client.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestGenerateTransportErrorRedactsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "super-secret", BaseURL: url}, nil)
	_, _, err := client.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "super-secret"), "error leaked key: %v", err)
}

func TestGenerateHonoursContextCancellation(t *testing.T) {
	block := make(chan struct{})
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.Generate(ctx, "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirstTextNilResponse(t *testing.T) {
	var resp *GenerateContentResponse
	_, ok := resp.FirstText()
	assert.False(t, ok)
}
