// Package gemini is the LLM gateway: a Gemini generateContent client behind
// a response cache and a fixed-window rate limiter, with a JSON extractor
// tolerant of fenced and truncated model output.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	requestTimeout = 30 * time.Second

	model = "gemini-1.5-flash"

	// DefaultTTL is how long generated responses stay cached.
	DefaultTTL = 2 * time.Hour

	temperature     = 0.1
	maxOutputTokens = 4096
)

// Client is the Gemini LLM client. All operations degrade to "unavailable"
// instead of failing: a missing key, an exhausted quota window, or an
// upstream error all yield ok=false.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	cache   *cache.Cache
	limiter *reliability.RateLimiter
	log     zerolog.Logger
}

// NewClient creates a new Gemini client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, c *cache.Cache, limiter *reliability.RateLimiter, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		cache:   c,
		limiter: limiter,
		log:     log.With().Str("client", "gemini").Logger(),
	}
}

// Configured reports whether real calls can be made.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Status reports the limiter window for the status endpoint.
func (c *Client) Status() (bool, reliability.RateStatus) {
	return c.Configured(), c.limiter.Status()
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate returns the model's text for prompt, serving repeats from cache.
// ok is false when the client is unconfigured, the per-minute quota is
// exhausted, or the upstream call fails.
func (c *Client) Generate(ctx context.Context, prompt, cacheKey string, ttl time.Duration) (string, bool) {
	if !c.Configured() {
		return "", false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if cached, ok := c.cache.Get(cacheKey, ttl); ok {
		metrics.LLMRequests.WithLabelValues("cached").Inc()
		return cached.(string), true
	}

	if !c.limiter.Allow() {
		metrics.LLMRequests.WithLabelValues("rate_limited").Inc()
		status := c.limiter.Status()
		c.log.Warn().Time("resetAt", status.ResetAt).Msg("llm quota exhausted, skipping call")
		return "", false
	}

	text, err := c.generateContent(ctx, prompt)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Str("cacheKey", cacheKey).Msg("llm call failed")
		return "", false
	}

	metrics.LLMRequests.WithLabelValues("ok").Inc()
	c.cache.Set(cacheKey, text)
	return text, true
}

// GenerateJSON runs Generate and decodes the extracted JSON payload into
// out. ok is false when generation failed or no parseable JSON was found.
func (c *Client) GenerateJSON(ctx context.Context, prompt, cacheKey string, ttl time.Duration, out interface{}) bool {
	text, ok := c.Generate(ctx, prompt, cacheKey, ttl)
	if !ok {
		return false
	}

	payload, ok := ExtractJSON(text)
	if !ok {
		c.log.Warn().Str("cacheKey", cacheKey).Msg("no parseable json in llm output")
		return false
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		c.log.Warn().Err(err).Str("cacheKey", cacheKey).Msg("llm json failed to decode")
		return false
	}
	return true
}

func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	}

	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	var resp generateResponse
	if err := c.fetcher.PostJSON(ctx, reqURL, req, requestTimeout, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// ExtractJSON pulls the first JSON value out of raw model output. It strips
// a surrounding code fence (tolerating a missing closing fence), then scans
// from the first brace or bracket tracking nesting depth and string
// literals. Truncated output is repaired by closing any open string and
// unwinding the open-scope stack; ok is false when no parseable value
// remains.
func ExtractJSON(s string) (string, bool) {
	s = stripFence(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	s = s[start:]

	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[:i+1], true
			}
		}
	}

	// Truncated: close the open string, then unwind the scope stack.
	var repair strings.Builder
	repair.WriteString(s)
	if inString {
		repair.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		repair.WriteByte(stack[i])
	}

	repaired := repair.String()
	if !json.Valid([]byte(repaired)) {
		return "", false
	}
	return repaired, true
}

// stripFence removes a surrounding markdown code fence, including the case
// where the closing fence was truncated away, and trims stray backticks.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		// Drop the language tag line ("json", etc).
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			first := strings.TrimSpace(s[:idx])
			if first == "" || !strings.ContainsAny(first, "{[") {
				s = s[idx+1:]
			}
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.Trim(strings.TrimSpace(s), "`")
}
