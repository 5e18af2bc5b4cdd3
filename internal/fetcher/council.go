package fetcher

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/sse"
)

const (
	defaultSessionID = "personal"
	streamSuffix     = "/stream"
)

// CouncilPayload is the wire body for both council endpoints.
type CouncilPayload struct {
	Text      string         `json:"text"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata"`
	Stream    bool           `json:"stream"`
}

// BuildCouncilPayload normalizes a request into the wire body.
// Text and session are trimmed, the session defaults to "personal", and
// metadata is layered over {source, ts} with timestamp defaulting to ts.
func BuildCouncilPayload(ctx context.Context, req domain.StreamRequest, stream bool, now time.Time) CouncilPayload {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		observability.FromContext(ctx).Warn("empty council text payload")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	ts := now.UnixMilli()
	metadata := map[string]any{
		"source": "ui",
		"ts":     ts,
	}
	if req.Panel != "" {
		metadata["panel"] = req.Panel
	}
	maps.Copy(metadata, req.Metadata)
	if _, ok := metadata["timestamp"]; !ok {
		metadata["timestamp"] = metadata["ts"]
	}

	return CouncilPayload{
		Text:      text,
		SessionID: sessionID,
		Metadata:  metadata,
		Stream:    stream,
	}
}

// IsStreamEndpoint reports whether endpoint is the streaming sibling.
func IsStreamEndpoint(endpoint string) bool {
	return strings.HasSuffix(strings.TrimSpace(endpoint), streamSuffix)
}

// CouncilConfig locates the council endpoints.
type CouncilConfig struct {
	Endpoint   string
	RetryLimit int
}

// CouncilClient speaks the council protocol on top of Client.
type CouncilClient struct {
	client     *Client
	endpoint   string
	retryLimit int
}

// NewCouncilClient creates a council client. The streaming endpoint is Endpoint + "/stream".
func NewCouncilClient(client *Client, config CouncilConfig) *CouncilClient {
	return &CouncilClient{
		client:     client,
		endpoint:   strings.TrimSuffix(strings.TrimSpace(config.Endpoint), "/"),
		retryLimit: config.RetryLimit,
	}
}

// Endpoint returns the non-streaming endpoint.
func (c *CouncilClient) Endpoint() string {
	return c.endpoint
}

// StreamEndpoint returns the streaming endpoint.
func (c *CouncilClient) StreamEndpoint() string {
	return c.endpoint + streamSuffix
}

// Complete sends req through the request/response endpoint.
// A 204 or non-JSON body yields an empty reply.
func (c *CouncilClient) Complete(ctx context.Context, req domain.StreamRequest) (*domain.CouncilReply, error) {
	payload := BuildCouncilPayload(ctx, req, IsStreamEndpoint(c.endpoint), c.client.now())
	observability.FromContext(ctx).Debug("council request",
		observability.String("endpoint", c.endpoint),
		observability.Int("text_length", len(payload.Text)))

	result, err := c.client.Call(ctx, c.endpoint, payload, Options{
		Method:     "POST",
		Headers:    nil,
		Backoff:    true,
		RetryLimit: c.retryLimit,
	})
	if err != nil {
		return nil, err
	}

	var reply domain.CouncilReply
	if !isJSON(result.ContentType) {
		return &reply, nil
	}
	if decodeErr := result.Decode(&reply); decodeErr != nil {
		return nil, fmt.Errorf("council reply: %w", decodeErr)
	}
	return &reply, nil
}

// Stream opens the streaming endpoint and forwards frames to handler until the server closes it.
func (c *CouncilClient) Stream(ctx context.Context, req domain.StreamRequest, handler sse.Handler) error {
	endpoint := c.StreamEndpoint()
	payload := BuildCouncilPayload(ctx, req, true, c.client.now())
	observability.FromContext(ctx).Debug("council stream request",
		observability.String("endpoint", endpoint),
		observability.Int("text_length", len(payload.Text)))

	return c.client.OpenStream(ctx, endpoint, payload, handler)
}
