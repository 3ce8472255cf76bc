// Package gemini is a minimal client for the Gemini generateContent endpoint.
package gemini

// GenerateContentRequest is the request body for models/{model}:generateContent.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one turn of a request or one candidate's payload.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part holds a text fragment. Text is a pointer so a part without a text
// field can be told apart from an empty string.
type Part struct {
	Text *string `json:"text,omitempty"`
}

// GenerationConfig carries the sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"topP" yaml:"top_p"`
	TopK        int     `json:"topK" yaml:"top_k"`
}

// DefaultGenerationConfig returns the tuning constants the assistant ships with.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature: 0.7,
		TopP:        0.95,
		TopK:        40,
	}
}

// GenerateContentResponse is a decoded generateContent body. Its shape is
// not trusted: FirstText walks it with type checks at every step.
type GenerateContentResponse struct {
	body any
}

// errorEnvelope is the error body returned with non-2xx statuses.
type errorEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// UserPrompt builds a single-turn request for prompt.
func UserPrompt(prompt string, gen GenerationConfig) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: &prompt}},
		}},
		GenerationConfig: &gen,
	}
}

// FirstText returns candidates[0].content.parts[0].text. ok is false when any
// link of that path is missing or has an unexpected type.
func (r *GenerateContentResponse) FirstText() (string, bool) {
	if r == nil {
		return "", false
	}
	candidate := firstElem(field(r.body, "candidates"))
	part := firstElem(field(field(candidate, "content"), "parts"))
	text, ok := field(part, "text").(string)
	return text, ok
}

func field(v any, key string) any {
	m, _ := v.(map[string]any)
	return m[key]
}

func firstElem(v any) any {
	s, _ := v.([]any)
	if len(s) == 0 {
		return nil
	}
	return s[0]
}
