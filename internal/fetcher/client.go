// Package fetcher is the network client used to reach the council: JSON
// request/response calls with rate-limit backoff, and incremental event streams.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/sse"
	"github.com/davidbz/council-relay/internal/telemetry"
)

// RetryDelays is the escalating wait applied between rate-limited attempts.
//
//nolint:gochecknoglobals // fixed backoff table
var RetryDelays = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// DefaultRetryLimit uses every entry of the delay table.
var DefaultRetryLimit = len(RetryDelays) //nolint:gochecknoglobals // derived from RetryDelays

const streamAttempt = 1

// Config contains network client settings.
type Config struct {
	// Timeout bounds each request/response call. Streams are not bound by it.
	Timeout time.Duration
	// IdleTimeout aborts a stream that delivers no bytes for this long. Zero disables it.
	IdleTimeout time.Duration
}

// Options tune a single call.
type Options struct {
	Method  string
	Headers http.Header
	// Backoff enables retries on 429.
	Backoff bool
	// RetryLimit caps retries; the first attempt is always made.
	RetryLimit int
}

// Result is a successful response.
type Result struct {
	Status      int
	ContentType string
	// NoContent is set for 204 responses, which carry no body at all.
	NoContent bool
	// Body holds decoded JSON (any) for JSON responses, otherwise the text.
	Body any
	Raw  []byte
}

// Decode unmarshals a JSON result into v. A no-content result leaves v untouched.
func (r *Result) Decode(v any) error {
	if r == nil || r.NoContent || len(r.Raw) == 0 {
		return nil
	}
	if !isJSON(r.ContentType) {
		return fmt.Errorf("response is not JSON (content-type %q)", r.ContentType)
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport used for calls and streams.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.callClient = httpClient
		c.streamClient = httpClient
	}
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(sleeper Sleeper) Option {
	return func(c *Client) {
		c.sleep = sleeper
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client issues council HTTP calls and reports every attempt to a latency recorder.
type Client struct {
	callClient   *http.Client
	streamClient *http.Client
	recorder     telemetry.Recorder
	idleTimeout  time.Duration
	sleep        Sleeper
	now          func() time.Time
}

// NewClient creates a network client.
func NewClient(config Config, recorder telemetry.Recorder, opts ...Option) *Client {
	c := &Client{
		callClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		recorder:     recorder,
		idleTimeout:  config.IdleTimeout,
		sleep:        sleepContext,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call performs a request/response exchange, retrying 429 responses when opts.Backoff is set.
func (c *Client) Call(ctx context.Context, target string, payload any, opts Options) (*Result, error) {
	body, contentType, err := serializeBody(payload)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
		if payload != nil {
			method = http.MethodPost
		}
	}

	maxAttempts := min(opts.RetryLimit+1, len(RetryDelays)+1)
	maxAttempts = max(maxAttempts, 1)

	logger := observability.FromContext(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, reqErr := c.newRequest(ctx, method, target, body, contentType, opts.Headers)
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Accept", firstNonEmpty(req.Header.Get("Accept"), "application/json"))

		start := c.now()
		resp, doErr := c.callClient.Do(req)
		if doErr != nil {
			c.record(ctx, target, method, StatusTransport, attempt+1, start)
			return nil, newTransportError(target, doErr)
		}
		c.record(ctx, target, method, resp.StatusCode, attempt+1, start)

		if resp.StatusCode == http.StatusTooManyRequests && opts.Backoff && attempt < opts.RetryLimit {
			drainAndClose(resp.Body)
			delay := RetryDelays[min(attempt, len(RetryDelays)-1)]
			logger.Info("rate limited, backing off",
				observability.String("url", target),
				observability.Int("attempt", attempt+1),
				observability.Duration("delay", delay))
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, newTransportError(target, sleepErr)
			}
			continue
		}

		return readResult(target, resp)
	}

	budgetErr := newStatusError(target, http.StatusTooManyRequests, nil)
	budgetErr.Message = ErrRetryBudgetExhausted.Error()
	budgetErr.cause = ErrRetryBudgetExhausted
	return nil, budgetErr
}

// OpenStream posts payload and hands each decoded frame to handler as it arrives.
// It returns once the server closes the stream and then records one latency sample.
func (c *Client) OpenStream(ctx context.Context, target string, payload any, handler sse.Handler) error {
	body, contentType, err := serializeBody(payload)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := c.newRequest(streamCtx, http.MethodPost, target, body, contentType, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	start := c.now()
	//nolint:bodyclose // closed below once the stream ends
	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.record(ctx, target, http.MethodPost, StatusTransport, streamAttempt, start)
		return newTransportError(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(ctx, target, http.MethodPost, resp.StatusCode, streamAttempt, start)
		_, readErr := readResult(target, resp)
		return readErr
	}

	var reader io.Reader = resp.Body
	if c.idleTimeout > 0 {
		watchdog := newIdleReader(resp.Body, c.idleTimeout, func() { cancel(ErrStreamIdle) })
		defer watchdog.stop()
		reader = watchdog
	}

	decodeErr := sse.Decode(ctx, reader, handler)
	c.record(ctx, target, http.MethodPost, resp.StatusCode, streamAttempt, start)

	if decodeErr != nil {
		if errors.Is(context.Cause(streamCtx), ErrStreamIdle) {
			return newTransportError(target, ErrStreamIdle)
		}
		return newTransportError(target, decodeErr)
	}
	return nil
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	target string,
	body []byte,
	contentType string,
	headers http.Header,
) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) record(ctx context.Context, target, method string, status, attempt int, start time.Time) {
	if c.recorder == nil {
		return
	}
	end := c.now()
	c.recorder.Publish(ctx, telemetry.Sample{
		URL:       target,
		Method:    method,
		Status:    status,
		Attempt:   attempt,
		Timestamp: end,
		Duration:  end.Sub(start),
	})
}

// serializeBody encodes form values as urlencoded and everything else as JSON.
func serializeBody(payload any) ([]byte, string, error) {
	switch p := payload.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return []byte(p.Encode()), "application/x-www-form-urlencoded", nil
	case []byte:
		return p, "application/json", nil
	default:
		body, err := json.Marshal(p)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
		return body, "application/json", nil
	}
}

func readResult(target string, resp *http.Response) (*Result, error) {
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	raw, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body any
		if readErr == nil {
			body = decodeBestEffort(raw, contentType)
		}
		return nil, newStatusError(target, resp.StatusCode, body)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &Result{Status: resp.StatusCode, ContentType: contentType, NoContent: true, Body: nil, Raw: nil}, nil
	}

	if readErr != nil {
		return nil, newTransportError(target, fmt.Errorf("failed to read response body: %w", readErr))
	}

	result := &Result{Status: resp.StatusCode, ContentType: contentType, NoContent: false, Body: nil, Raw: raw}
	if isJSON(contentType) {
		var decoded any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		result.Body = decoded
		return result, nil
	}

	result.Body = string(raw)
	return result, nil
}

func decodeBestEffort(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	if isJSON(contentType) {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return string(raw)
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
