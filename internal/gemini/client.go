package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public v1beta endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is the model the assistant was built against.
	DefaultModel = "gemini-2.0-flash"

	unknownErrorMessage = "Unknown error"
	maxErrorBodySize    = 1 << 20
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Status     string // e.g. "429 Too Many Requests"
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Generation GenerationConfig
	HTTPClient *http.Client
}

// Client calls the generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	generation GenerationConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. The API key is not validated; an empty key is
// sent as-is and the service decides.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Generation == (GenerationConfig{}) {
		cfg.Generation = DefaultGenerationConfig()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		generation: cfg.Generation,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt as a single user turn and returns the first generated
// text. ok is false when the response was well-formed but carried no text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, bool, error) {
	resp, err := c.GenerateContent(ctx, UserPrompt(prompt, c.generation))
	if err != nil {
		return "", false, err
	}
	text, ok := resp.FirstText()
	return text, ok, nil
}

// GenerateContent performs one generateContent call. No retries.
func (c *Client) GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request generateContent: %w", redactKey(err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("gemini: failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("gemini: generateContent returned",
		"model", c.model,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	// Only a body that is not JSON at all is an error; shape is checked by FirstText.
	var out GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out.body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	return fmt.Sprintf("%s/models/%s:generateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    unknownErrorMessage,
	}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return apiErr
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return apiErr
	}
	if env.Error != nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// redactKey strips the query string from url.Error so the credential never
// reaches error messages or logs.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			u.RawQuery = ""
			urlErr.URL = u.String()
		}
	}
	return err
}
