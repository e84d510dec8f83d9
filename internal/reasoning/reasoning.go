// Package reasoning matches a chart description against the pattern
// taxonomy with a chat-completion reasoning model.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/candlelens/candlelens/internal/cost"
	"github.com/candlelens/candlelens/internal/failure"
	"github.com/candlelens/candlelens/pkg/models"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-reasoner"

	unknownField   = "Unknown"
	noReasoningMsg = "No reasoning provided"
)

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithPricing overrides the token rates used for cost_usd.
func WithPricing(p cost.Pricing) Option {
	return func(c *Client) {
		c.pricing = p
	}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	pricing cost.Pricing
}

// NewClient creates a reasoning client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http:    &http.Client{Timeout: 5 * time.Minute},
		pricing: cost.DefaultPricing(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Analyze asks the model which taxonomy pattern best fits description.
func (c *Client) Analyze(ctx context.Context, description string, patterns []models.Pattern) (models.AnalysisResult, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt(patterns)},
			{Role: "user", Content: userPrompt(description)},
		},
		Stream: false,
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Info().Str("model", c.model).Int("patterns", len(patterns)).Msg("sending chart description to reasoner")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.AnalysisResult{}, failure.Wrap(failure.Transport, err, "reasoner request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AnalysisResult{}, failure.Wrap(failure.Transport, err, "read reasoner response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AnalysisResult{}, failure.New(failure.Upstream, "reasoner API error (%d): %s", resp.StatusCode, string(respBody))
	}

	result, err := c.decode(respBody)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	log.Info().
		Uint64("prompt_tokens", result.PromptTokens).
		Uint64("cache_hit_tokens", result.CacheHitTokens).
		Uint64("completion_tokens", result.CompletionTokens).
		Uint64("reasoning_tokens", result.ReasoningTokens).
		Float64("cost_usd", result.CostUSD).
		Str("pattern", result.Pattern).
		Msg("reasoner usage")
	return result, nil
}

func (c *Client) decode(body []byte) (models.AnalysisResult, error) {
	if !gjson.ValidBytes(body) {
		return models.AnalysisResult{}, failure.New(failure.Parse, "decode reasoner response: invalid JSON").WithRaw(string(body))
	}
	root := gjson.ParseBytes(body)

	choices := root.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return models.AnalysisResult{}, failure.New(failure.Parse, "reasoner returned no choices").WithRaw(string(body))
	}
	msg := choices.Array()[0].Get("message")
	content := msg.Get("content")
	if content.Type != gjson.String {
		return models.AnalysisResult{}, failure.New(failure.Parse, "reasoner message has no content").WithRaw(string(body))
	}

	result, err := parseVerdict(content.Str)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	if cot := msg.Get("reasoning_content"); cot.Type == gjson.String {
		s := cot.Str
		result.ChainOfThought = &s
	}

	u := usageFrom(root.Get("usage"))
	result.PromptTokens = u.PromptTokens
	result.CompletionTokens = u.CompletionTokens
	result.ReasoningTokens = u.ReasoningTokens
	result.CacheHitTokens = u.CacheHitTokens
	result.CostUSD = cost.ReasonerCost(u, c.pricing)

	return result, nil
}

// usageFrom reads token counters; absent counters are zero and cache hits
// are clamped to the prompt size.
func usageFrom(r gjson.Result) cost.Usage {
	u := cost.Usage{
		PromptTokens:     r.Get("prompt_tokens").Uint(),
		CompletionTokens: r.Get("completion_tokens").Uint(),
		ReasoningTokens:  r.Get("reasoning_tokens").Uint(),
		CacheHitTokens:   r.Get("prompt_cache_hit_tokens").Uint(),
	}
	if u.ReasoningTokens == 0 {
		u.ReasoningTokens = r.Get("completion_tokens_details.reasoning_tokens").Uint()
	}
	if u.CacheHitTokens > u.PromptTokens {
		u.CacheHitTokens = u.PromptTokens
	}
	return u
}

// parseVerdict extracts the five answer fields from the model content.
// Missing or non-string fields fall back to sentinels.
func parseVerdict(content string) (models.AnalysisResult, error) {
	stripped := stripFences(content)
	if !gjson.Valid(stripped) {
		return models.AnalysisResult{}, failure.New(failure.Parse, "pattern JSON from reasoner is invalid").WithRaw(content)
	}
	v := gjson.Parse(stripped)

	return models.AnalysisResult{
		Pattern:    stringOr(v.Get("pattern"), unknownField),
		Category:   stringOr(v.Get("category"), unknownField),
		Direction:  stringOr(v.Get("direction"), unknownField),
		Confidence: stringOr(v.Get("confidence"), unknownField),
		Reasoning:  stringOr(v.Get("reasoning"), noReasoningMsg),
	}, nil
}

func stringOr(r gjson.Result, fallback string) string {
	if r.Type != gjson.String {
		return fallback
	}
	return r.Str
}

// stripFences removes an optional leading ``` fence (with or without a
// language tag) and an optional trailing ``` fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		})
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
