package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davidbz/council-relay/internal/observability"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

//nolint:gochecknoglobals // immutable delimiter
var delimiter = []byte("\n\n")

// Handler receives each decoded frame in arrival order.
type Handler func(Frame)

// Decoder buffers partial input across writes and emits complete frames.
// It is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	handler Handler
	dropped int
}

// NewDecoder creates a decoder that forwards frames to handler.
func NewDecoder(handler Handler) *Decoder {
	return &Decoder{
		buf:     nil,
		handler: handler,
		dropped: 0,
	}
}

// Write appends a chunk and dispatches every complete frame it closes.
// It never fails; malformed frames are dropped.
func (d *Decoder) Write(chunk []byte) (int, error) {
	d.buf = append(d.buf, chunk...)
	d.drain()
	return len(chunk), nil
}

// Flush processes whatever is left in the buffer as a final frame,
// for streams whose last event lacks the trailing blank line.
func (d *Decoder) Flush() {
	d.drain()
	if len(bytes.TrimSpace(d.buf)) > 0 {
		d.dispatch(d.buf)
	}
	d.buf = nil
}

// Dropped returns how many non-empty frames were discarded as malformed or unknown.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) drain() {
	for {
		idx := bytes.Index(d.buf, delimiter)
		if idx < 0 {
			return
		}
		raw := d.buf[:idx]
		d.buf = d.buf[idx+len(delimiter):]
		d.dispatch(raw)
	}
}

func (d *Decoder) dispatch(raw []byte) {
	payload, ok := extractData(raw)
	if !ok {
		if len(bytes.TrimSpace(raw)) > 0 {
			d.dropped++
		}
		return
	}
	if payload == nil {
		return
	}

	frame, err := ParseFrame(payload)
	if err != nil {
		d.dropped++
		return
	}

	if d.handler != nil {
		d.handler(frame)
	}
}

// extractData returns the trimmed data payload of an event whose first line
// starts with the data prefix. Additional data lines are joined with newlines.
// Empty payloads and the termination sentinel yield a nil payload with ok set.
func extractData(raw []byte) ([]byte, bool) {
	lines := bytes.Split(raw, []byte("\n"))
	if len(lines) == 0 || !bytes.HasPrefix(lines[0], []byte(dataPrefix)) {
		return nil, false
	}

	parts := make([][]byte, 0, len(lines))
	for _, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		parts = append(parts, bytes.TrimSpace(line[len(dataPrefix):]))
	}

	payload := bytes.TrimSpace(bytes.Join(parts, []byte("\n")))
	if len(payload) == 0 || string(payload) == doneSentinel {
		return nil, true
	}
	return payload, true
}

// Decode reads r until EOF, forwarding frames to handler. The buffer is
// flushed once more after the last read. Only transport read errors are returned.
func Decode(ctx context.Context, r io.Reader, handler Handler) error {
	decoder := NewDecoder(handler)
	chunk := make([]byte, readSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			_, _ = decoder.Write(chunk[:n])
		}
		if err != nil {
			decoder.Flush()
			if dropped := decoder.Dropped(); dropped > 0 {
				observability.FromContext(ctx).Debug("dropped malformed stream frames",
					observability.Int("dropped", dropped))
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}
