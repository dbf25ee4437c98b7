package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/reliability"
)

func newTestClient(t *testing.T, apiKey string, limit int, handler http.HandlerFunc) (*Client, *cache.Cache) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher := fetch.New(fetch.Config{AllowedHosts: []string{u.Host}, AllowPrivate: true}, zerolog.Nop())
	c := cache.New()
	limiter := reliability.NewRateLimiter(limit, time.Minute)
	return NewClient(srv.URL, apiKey, fetcher, c, limiter, zerolog.Nop()), c
}

func candidateJSON(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []map[string]interface{}{{"text": text}},
			},
		}},
	}
}

func TestGenerateUnconfigured(t *testing.T) {
	client, _ := newTestClient(t, "", 10, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no upstream call expected without a key")
	})

	_, ok := client.Generate(context.Background(), "prompt", "k", 0)
	assert.False(t, ok)
	assert.False(t, client.Configured())
}

func TestGenerateCallsUpstreamAndCaches(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, "key", 10, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "gemini-1.5-flash:generateContent")
		assert.Equal(t, "key", r.URL.Query().Get("key"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gc := req["generationConfig"].(map[string]interface{})
		assert.Equal(t, 0.1, gc["temperature"])
		assert.Equal(t, float64(4096), gc["maxOutputTokens"])

		json.NewEncoder(w).Encode(candidateJSON("the answer"))
	})

	text, ok := client.Generate(context.Background(), "prompt", "llm:test", 0)
	require.True(t, ok)
	assert.Equal(t, "the answer", text)

	// Second call is served from cache.
	text, ok = client.Generate(context.Background(), "prompt", "llm:test", 0)
	require.True(t, ok)
	assert.Equal(t, "the answer", text)
	assert.Equal(t, 1, calls)
}

func TestGenerateRateLimited(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, "key", 1, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(candidateJSON("ok"))
	})

	_, ok := client.Generate(context.Background(), "p1", "k1", 0)
	require.True(t, ok)

	// Window budget of 1 is spent; a different key must be rejected without
	// an upstream call.
	_, ok = client.Generate(context.Background(), "p2", "k2", 0)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestGenerateUpstreamFailure(t *testing.T) {
	client, _ := newTestClient(t, "key", 10, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, ok := client.Generate(context.Background(), "prompt", "k", 0)
	assert.False(t, ok)
}

func TestGenerateEmptyCandidates(t *testing.T) {
	client, _ := newTestClient(t, "key", 10, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, ok := client.Generate(context.Background(), "prompt", "k", 0)
	assert.False(t, ok)
}

func TestGenerateJSONDecodesFencedOutput(t *testing.T) {
	client, _ := newTestClient(t, "key", 10, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(candidateJSON("```json\n{\"score\": 7, \"label\": \"Bullish\"}\n```"))
	})

	var out struct {
		Score int    `json:"score"`
		Label string `json:"label"`
	}
	ok := client.GenerateJSON(context.Background(), "prompt", "k", 0, &out)
	require.True(t, ok)
	assert.Equal(t, 7, out.Score)
	assert.Equal(t, "Bullish", out.Label)
}

func TestGenerateJSONNoJSONInOutput(t *testing.T) {
	client, _ := newTestClient(t, "key", 10, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(candidateJSON("I cannot help with that."))
	})

	var out map[string]interface{}
	assert.False(t, client.GenerateJSON(context.Background(), "prompt", "k", 0, &out))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"bare array", `[1,2,3]`, `[1,2,3]`, true},
		{"leading prose", `Here you go: {"a":1} hope that helps`, `{"a":1}`, true},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"fence unclosed", "```json\n{\"a\":1}", `{"a":1}`, true},
		{"stray backticks", "`{\"a\":1}`", `{"a":1}`, true},
		{"nested", `{"a":{"b":[1,{"c":2}]}}`, `{"a":{"b":[1,{"c":2}]}}`, true},
		{"braces in strings", `{"a":"}{","b":1}`, `{"a":"}{","b":1}`, true},
		{"escaped quote", `{"a":"say \"hi\""}`, `{"a":"say \"hi\""}`, true},
		{"truncated object", `{"a":1,"b":[1,2`, `{"a":1,"b":[1,2]}`, true},
		{"truncated in string", `{"a":"hel`, `{"a":"hel"}`, true},
		{"no json", "plain text only", "", false},
		{"empty", "", "", false},
		{"mismatched close", `{"a":1]`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.True(t, json.Valid([]byte(got)))
			}
		})
	}
}

func TestExtractJSONTruncatedKeyIsRejected(t *testing.T) {
	// Closing the scopes alone leaves a dangling key, which is invalid
	// JSON; the extractor must report failure rather than return garbage.
	_, ok := ExtractJSON(`{"a":1,"b"`)
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	client, _ := newTestClient(t, "key", 12, func(w http.ResponseWriter, r *http.Request) {})

	configured, status := client.Status()
	assert.True(t, configured)
	assert.Equal(t, 12, status.RequestsRemaining)
}
