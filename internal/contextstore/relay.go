package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
)

// Caller is the part of the network client the relay store needs.
type Caller interface {
	Call(ctx context.Context, target string, payload any, opts fetcher.Options) (*fetcher.Result, error)
}

// Relay delegates context storage to the backend's RAG endpoints.
type Relay struct {
	caller  Caller
	baseURL string
}

type storeRequest struct {
	Panel     string `json:"panel"`
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
}

type searchRequest struct {
	Panel     string `json:"panel"`
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
	K         int    `json:"k"`
}

// NewRelay creates a store that POSTs to baseURL+"/store" and baseURL+"/search".
func NewRelay(caller Caller, baseURL string) *Relay {
	return &Relay{
		caller:  caller,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Store records an exchange chunk.
func (r *Relay) Store(ctx context.Context, panel, sessionID, chunk string) error {
	_, err := r.caller.Call(ctx, r.baseURL+"/store", storeRequest{
		Panel:     panel,
		SessionID: sessionID,
		Chunk:     chunk,
	}, fetcher.Options{Method: "POST"})
	if err != nil {
		return fmt.Errorf("rag store: %w", err)
	}
	return nil
}

// Search retrieves matches. The backend may answer with a bare array or {"matches": [...]}.
func (r *Relay) Search(ctx context.Context, panel, sessionID, query string, limit int) ([]domain.RagMatch, error) {
	result, err := r.caller.Call(ctx, r.baseURL+"/search", searchRequest{
		Panel:     panel,
		SessionID: sessionID,
		Query:     query,
		K:         limit,
	}, fetcher.Options{Method: "POST"})
	if err != nil {
		return nil, fmt.Errorf("rag search: %w", err)
	}
	if result.NoContent || len(result.Raw) == 0 {
		return nil, nil
	}

	return parseMatches(result.Raw)
}

func parseMatches(raw []byte) ([]domain.RagMatch, error) {
	body := gjson.ParseBytes(raw)
	if !body.IsArray() {
		body = body.Get("matches")
	}
	if !body.IsArray() {
		return nil, nil
	}

	var matches []domain.RagMatch
	if err := json.Unmarshal([]byte(body.Raw), &matches); err != nil {
		return nil, fmt.Errorf("failed to decode rag matches: %w", err)
	}
	return matches, nil
}

// Nop discards writes and finds nothing. It backs MEMORY_BACKEND=none.
type Nop struct{}

// Store implements domain.ContextStore.
func (Nop) Store(context.Context, string, string, string) error { return nil }

// Search implements domain.ContextStore.
func (Nop) Search(context.Context, string, string, string, int) ([]domain.RagMatch, error) {
	return nil, nil
}
