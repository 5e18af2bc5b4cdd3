// Package sse decodes the council's server-sent event stream into typed frames.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/davidbz/council-relay/internal/domain"
)

var (
	// ErrUnknownFrame is returned for payloads whose type tag is missing or unrecognized.
	ErrUnknownFrame = errors.New("unknown frame type")
	// ErrMissingRetrieved is returned for context frames without a retrieved array.
	ErrMissingRetrieved = errors.New("context frame has no retrieved array")
)

// Kind is the frame type tag.
type Kind string

const (
	KindContext Kind = "context"
	KindDelta   Kind = "delta"
	KindDone    Kind = "done"
	KindError   Kind = "error"
)

// Frame is one decoded event. The set of implementations is closed:
// ContextFrame, DeltaFrame, DoneFrame and ErrorFrame.
type Frame interface {
	Kind() Kind
	isFrame()
}

// ContextFrame carries retrieved supporting material.
type ContextFrame struct {
	Retrieved []domain.RagMatch `json:"retrieved"`
}

// DeltaFrame carries one incremental token.
type DeltaFrame struct {
	Token   string `json:"token"`
	TraceID string `json:"trace_id,omitempty"`
}

// DoneFrame is terminal and carries the authoritative reply.
type DoneFrame struct {
	Reply      string            `json:"reply"`
	TokensUsed int               `json:"tokens_used"`
	TraceID    string            `json:"trace_id,omitempty"`
	Retrieved  []domain.RagMatch `json:"retrieved,omitempty"`
}

// ErrorFrame is terminal and carries the server's error message.
type ErrorFrame struct {
	Message string `json:"message"`
}

func (ContextFrame) Kind() Kind { return KindContext }
func (DeltaFrame) Kind() Kind   { return KindDelta }
func (DoneFrame) Kind() Kind    { return KindDone }
func (ErrorFrame) Kind() Kind   { return KindError }

func (ContextFrame) isFrame() {}
func (DeltaFrame) isFrame()   {}
func (DoneFrame) isFrame()    {}
func (ErrorFrame) isFrame()   {}

// IsTerminal reports whether f ends a stream.
func IsTerminal(f Frame) bool {
	switch f.(type) {
	case DoneFrame, ErrorFrame:
		return true
	default:
		return false
	}
}

// ParseFrame decodes a JSON payload into its concrete frame type.
func ParseFrame(payload []byte) (Frame, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("frame payload is not valid JSON")
	}

	tag := gjson.GetBytes(payload, "type")
	if tag.Type != gjson.String {
		return nil, ErrUnknownFrame
	}

	switch Kind(tag.Str) {
	case KindContext:
		if !gjson.GetBytes(payload, "retrieved").IsArray() {
			return nil, ErrMissingRetrieved
		}
		return decodeAs[ContextFrame](payload)
	case KindDelta:
		return decodeAs[DeltaFrame](payload)
	case KindDone:
		return decodeAs[DoneFrame](payload)
	case KindError:
		return decodeAs[ErrorFrame](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, tag.Str)
	}
}

func decodeAs[T Frame](payload []byte) (Frame, error) {
	var frame T
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode %s frame: %w", frame.Kind(), err)
	}
	return frame, nil
}

// Encode renders a frame as a single SSE event, including the blank-line delimiter.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}

	tagged, err := withType(body, f.Kind())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(tagged)+len(dataPrefix)+len(delimiter)+1)
	out = append(out, dataPrefix...)
	out = append(out, ' ')
	out = append(out, tagged...)
	out = append(out, delimiter...)
	return out, nil
}

func withType(body []byte, kind Kind) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to tag frame: %w", err)
	}
	tag, _ := json.Marshal(string(kind))
	fields["type"] = tag
	tagged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to tag frame: %w", err)
	}
	return tagged, nil
}
