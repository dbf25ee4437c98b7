// Package fetch is the single egress point for outbound HTTP. Every upstream
// call goes through a Fetcher, which enforces a hostname allowlist, rejects
// loopback and private-range targets, and aborts at the caller's deadline.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ApiError is the typed error for all fetcher failures: 403 allowlist
// violation, 408 timeout, upstream status for non-2xx, 502 for bodies that
// fail to parse.
type ApiError struct {
	Status  int
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AsApiError unwraps err into an *ApiError if possible.
func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var privatePrefixes = []string{"192.168.", "10.", "172.16."}

// Config holds fetcher construction parameters.
type Config struct {
	AllowedHosts []string // exact host[:port] matches
	HTTPSOnly    bool     // production: reject plain http
	AllowPrivate bool     // tests only: admit allowlisted loopback hosts
}

// Options customizes a single request.
type Options struct {
	Method  string
	Headers map[string]string
	Body    io.Reader
}

// Fetcher performs guarded outbound HTTP.
type Fetcher struct {
	client       *http.Client
	allowed      map[string]bool
	httpsOnly    bool
	allowPrivate bool
	log          zerolog.Logger
}

// New creates a fetcher. The allowlist is fixed for the fetcher's lifetime.
func New(cfg Config, log zerolog.Logger) *Fetcher {
	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, host := range cfg.AllowedHosts {
		allowed[host] = true
	}

	return &Fetcher{
		// Per-call deadlines come from contexts; this is a hard backstop.
		client:       &http.Client{Timeout: 30 * time.Second},
		allowed:      allowed,
		httpsOnly:    cfg.HTTPSOnly,
		allowPrivate: cfg.AllowPrivate,
		log:          log.With().Str("component", "fetch").Logger(),
	}
}

// ValidateURL applies the egress rules without making a request.
func (f *Fetcher) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &ApiError{Status: 403, Message: "unparseable URL"}
	}

	if f.httpsOnly && u.Scheme != "https" {
		return &ApiError{Status: 403, Message: "non-HTTPS egress blocked"}
	}

	if !f.allowed[u.Host] {
		return &ApiError{Status: 403, Message: fmt.Sprintf("host %q not in allowlist", u.Host)}
	}

	if !f.allowPrivate {
		hostname := u.Hostname()
		if hostname == "localhost" || hostname == "127.0.0.1" || strings.HasSuffix(hostname, ".local") {
			return &ApiError{Status: 403, Message: "loopback host blocked"}
		}
		for _, prefix := range privatePrefixes {
			if strings.HasPrefix(hostname, prefix) {
				return &ApiError{Status: 403, Message: "private-range host blocked"}
			}
		}
	}

	return nil
}

// FetchWithTimeout performs a guarded request, merging standard headers over
// the caller's and aborting at the deadline. The caller owns the response
// body.
func (f *Fetcher) FetchWithTimeout(ctx context.Context, rawURL string, opts *Options, timeout time.Duration) (*http.Response, error) {
	if err := f.ValidateURL(rawURL); err != nil {
		f.log.Error().Str("url", rawURL).Err(err).Msg("Egress blocked")
		return nil, err
	}

	method := http.MethodGet
	var body io.Reader
	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		body = opts.Body
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		cancel()
		return nil, err
	}

	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}
	// Standard headers win over caller-supplied ones.
	req.Header.Set("User-Agent", "TickerHub/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, &ApiError{Status: 408, Message: "upstream timeout"}
		}
		return nil, err
	}

	// Tie the cancel to body close so the deadline covers the read.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// FetchJSON performs a GET and decodes a 2xx JSON body into out.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, timeout time.Duration, out interface{}) error {
	resp, err := f.FetchWithTimeout(ctx, rawURL, nil, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &ApiError{Status: resp.StatusCode, Message: "upstream returned non-2xx"}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ApiError{Status: 502, Message: "failed to parse upstream response"}
	}
	return nil
}

// PostJSON performs a guarded POST with a JSON body and decodes the response.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, payload interface{}, timeout time.Duration, out interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := f.FetchWithTimeout(ctx, rawURL, &Options{
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    strings.NewReader(string(encoded)),
	}, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &ApiError{Status: resp.StatusCode, Message: "upstream returned non-2xx"}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ApiError{Status: 502, Message: "failed to parse upstream response"}
	}
	return nil
}

// SafeFetch is FetchJSON with all errors swallowed, for optional augmentation
// calls. Returns false when no value was decoded.
func (f *Fetcher) SafeFetch(ctx context.Context, rawURL string, timeout time.Duration, out interface{}) bool {
	if err := f.FetchJSON(ctx, rawURL, timeout, out); err != nil {
		f.log.Debug().Str("url", rawURL).Err(err).Msg("SafeFetch swallowed error")
		return false
	}
	return true
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
