package lifecycle

import (
	"fmt"
	"net/http"

	"github.com/davidbz/council-relay/internal/fetcher"
)

const (
	// DefaultReply is shown when a council reply carries no text.
	DefaultReply = "Ready to help with that."

	// InterruptedText is shown while an errored stream is retried without streaming.
	InterruptedText = "Council stream interrupted. Retrying…"

	exchangeSeparator = "\n---\n"
)

// ErrorText renders the user-visible message for a failed exchange.
// HTTP failures read as "busy", anything else as an interruption.
func ErrorText(err error) string {
	status, ok := fetcher.StatusOf(err)
	if !ok {
		return "Council stream interrupted. Try again in a few moments."
	}
	if status >= http.StatusBadRequest {
		return fmt.Sprintf("Council is busy (status %d). Try again in a few moments.", status)
	}
	return fmt.Sprintf("Council stream interrupted (status %d). Try again in a few moments.", status)
}

// ForwardingText is the placeholder content while a forward is in flight.
func ForwardingText(name string) string {
	return fmt.Sprintf("Forwarding to %s…", name)
}

// SharedText is the default reply for a forward whose response carries no text.
func SharedText(name string) string {
	return fmt.Sprintf("Shared with %s.", name)
}

// UnreachableText is shown when a forward fails.
func UnreachableText(name string) string {
	return fmt.Sprintf("Unable to reach %s.", name)
}

// ExchangeChunk joins a prompt and its reply for long-term storage.
func ExchangeChunk(prompt, reply string) string {
	return prompt + exchangeSeparator + reply
}
