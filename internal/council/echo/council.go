// Package echo is a council backend that echoes messages back. It serves the
// same HTTP protocol as the real council, including the event stream and the
// RAG endpoints, without making external calls. It backs local development
// and the relay's end-to-end tests.
package echo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/sse"
)

const defaultChunkDelay = 10 * time.Millisecond

// Config controls the echo council.
type Config struct {
	CouncilPath string
	RAGPath     string
	// StreamUnsupported makes the stream endpoint answer 501.
	StreamUnsupported bool
	ChunkDelay        time.Duration
}

// Council implements the council HTTP protocol in memory.
type Council struct {
	config Config

	mu       sync.RWMutex
	memories map[string][]domain.RagMatch
}

// NewCouncil creates an echo council.
func NewCouncil(config Config) *Council {
	if config.CouncilPath == "" {
		config.CouncilPath = "/api/council"
	}
	if config.RAGPath == "" {
		config.RAGPath = "/api/rag"
	}
	return &Council{
		config:   config,
		mu:       sync.RWMutex{},
		memories: make(map[string][]domain.RagMatch),
	}
}

// Handler returns the routes of the council protocol.
func (c *Council) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+c.config.CouncilPath, c.handleComplete)
	mux.HandleFunc("POST "+c.config.CouncilPath+"/stream", c.handleStream)
	mux.HandleFunc("POST "+c.config.RAGPath+"/store", c.handleStore)
	mux.HandleFunc("POST "+c.config.RAGPath+"/search", c.handleSearch)
	return mux
}

func (c *Council) handleComplete(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	reply := buildEchoContent(payload)
	observability.FromContext(r.Context()).Debug("echoing request",
		observability.Int("tokens", countTokens(reply)))

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":       reply,
		"tokens_used": countTokens(reply),
	})
}

func (c *Council) handleStream(w http.ResponseWriter, r *http.Request) {
	if c.config.StreamUnsupported {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "streaming not supported"})
		return
	}

	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	traceID := uuid.NewString()
	send := func(frame sse.Frame) bool {
		data, err := sse.Encode(frame)
		if err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if retrieved := contextMatches(payload); len(retrieved) > 0 {
		if !send(sse.ContextFrame{Retrieved: retrieved}) {
			return
		}
	}

	reply := buildEchoContent(payload)
	words := strings.Fields(reply)
	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.chunkDelay()):
		}

		if !send(sse.DeltaFrame{Token: delta, TraceID: traceID}) {
			return
		}
	}

	send(sse.DoneFrame{Reply: reply, TokensUsed: countTokens(reply), TraceID: traceID})
}

func (c *Council) chunkDelay() time.Duration {
	if c.config.ChunkDelay < 0 {
		return 0
	}
	if c.config.ChunkDelay == 0 {
		return defaultChunkDelay
	}
	return c.config.ChunkDelay
}

type ragStoreRequest struct {
	Panel     string `json:"panel"`
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
}

type ragSearchRequest struct {
	Panel     string `json:"panel"`
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
	K         int    `json:"k"`
}

func (c *Council) handleStore(w http.ResponseWriter, r *http.Request) {
	var req ragStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	key := memoryKey(req.Panel, req.SessionID)
	c.mu.Lock()
	c.memories[key] = append(c.memories[key], domain.RagMatch{
		ID:      uuid.NewString(),
		Content: req.Chunk,
		Score:   1,
		Source:  "echo",
	})
	c.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// handleSearch returns the most recent chunks first; the query is ignored.
func (c *Council) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req ragSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	c.mu.RLock()
	stored := c.memories[memoryKey(req.Panel, req.SessionID)]
	matches := make([]domain.RagMatch, 0, min(len(stored), max(req.K, 0)))
	for i := len(stored) - 1; i >= 0 && len(matches) < req.K; i-- {
		matches = append(matches, stored[i])
	}
	c.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func memoryKey(panel, sessionID string) string {
	return panel + "/" + sessionID
}

func decodePayload(w http.ResponseWriter, r *http.Request) (fetcher.CouncilPayload, bool) {
	var payload fetcher.CouncilPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return payload, false
	}
	return payload, true
}

// buildEchoContent renders the reply for a payload.
func buildEchoContent(payload fetcher.CouncilPayload) string {
	if payload.Text == "" {
		return ""
	}
	panel, _ := payload.Metadata["panel"].(string)
	if panel == "" {
		panel = payload.SessionID
	}
	return fmt.Sprintf("[%s] echo: %s", panel, payload.Text)
}

// contextMatches turns metadata.context strings back into matches.
func contextMatches(payload fetcher.CouncilPayload) []domain.RagMatch {
	raw, _ := payload.Metadata["context"].([]any)
	matches := make([]domain.RagMatch, 0, len(raw))
	for i, item := range raw {
		if content, ok := item.(string); ok && content != "" {
			matches = append(matches, domain.RagMatch{
				ID:      fmt.Sprintf("ctx-%d", i),
				Content: content,
				Source:  "echo",
			})
		}
	}
	return matches
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	return len(strings.Fields(content))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
