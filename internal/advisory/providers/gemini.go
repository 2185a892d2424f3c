package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// defaultFallbackModels is the fixed fallback sequence tried after the
// configured default model.
var defaultFallbackModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
	"gemini-1.5-pro",
	"gemini-pro",
}

// Result is the outcome of a successful (or safety-blocked) generation.
type Result struct {
	Text    string
	Model   string
	Blocked bool
}

// GeminiClient calls the Google Generative Language API, walking a
// prioritized list of model identifiers until one produces usable text.
type GeminiClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	timeout      time.Duration
	client       *http.Client
	circuit      *gobreaker.CircuitBreaker
}

// NewGeminiClient creates a provider client. An empty apiKey yields an
// unconfigured client; callers check Configured before generating.
func NewGeminiClient(client *http.Client, apiKey, defaultModel string, timeout time.Duration) *GeminiClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if defaultModel == "" {
		defaultModel = defaultFallbackModels[0]
	}

	return &GeminiClient{
		apiKey:       apiKey,
		baseURL:      "https://generativelanguage.googleapis.com/v1beta",
		defaultModel: defaultModel,
		timeout:      timeout,
		client:       client,
		circuit:      cb,
	}
}

// Configured reports whether a provider credential is present.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

// Candidates returns the prioritized, de-duplicated model list: the
// configured default first, then the fixed fallback sequence.
func (c *GeminiClient) Candidates() []string {
	out := make([]string, 0, len(defaultFallbackModels)+1)
	seen := make(map[string]bool)
	for _, m := range append([]string{c.defaultModel}, defaultFallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Generate tries each candidate model in order and classifies every
// outcome. Transport failures, retryable statuses/messages and empty
// responses move on to the next candidate; any other non-success aborts
// immediately; a safety block is terminal but not an error. When all
// candidates are exhausted the last recorded error is returned so the
// caller can fall back locally.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (*Result, error) {
	if !c.Configured() {
		return nil, &ProviderError{Message: "no api key configured", Retryable: true}
	}

	var lastErr error
	for _, model := range c.Candidates() {
		res, err := c.generateOnce(ctx, model, prompt)
		if err == nil {
			return res, nil
		}

		var perr *ProviderError
		if errors.As(err, &perr) && !perr.Retryable {
			// Non-retryable failure class: abort the chain.
			return nil, err
		}

		log.Printf("provider model %s failed, trying next candidate: %v", model, err)
		lastErr = err
	}

	return nil, lastErr
}

func (c *GeminiClient) generateOnce(ctx context.Context, model, prompt string) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	result, err := c.circuit.Execute(func() (interface{}, error) {
		return c.client.Do(req)
	})
	if err != nil {
		// Transport failure or open circuit: try the next candidate.
		return nil, &ProviderError{Model: model, Message: err.Error(), Retryable: true}
	}
	resp := result.(*http.Response)
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Model: model, Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(raw)
		retryable := retryableStatus(resp.StatusCode) || retryableMessage(msg)
		return nil, &ProviderError{
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Retryable:  retryable,
		}
	}

	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ProviderError{Model: model, Message: "malformed response: " + err.Error(), Retryable: true}
	}

	if payload.blocked() {
		return &Result{Model: model, Blocked: true}, nil
	}

	text := payload.text()
	if text == "" {
		return nil, &ProviderError{Model: model, Message: "empty response text", Retryable: true}
	}

	return &Result{Text: text, Model: model}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *generateResponse) blocked() bool {
	if g.PromptFeedback.BlockReason != "" {
		return true
	}
	for _, c := range g.Candidates {
		if c.FinishReason == "SAFETY" {
			return true
		}
	}
	return false
}

func (g *generateResponse) text() string {
	var sb strings.Builder
	for _, c := range g.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// errorMessage extracts the API error message from a non-success body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
