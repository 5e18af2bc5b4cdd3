package contextstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/contextstore"
	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/telemetry"
)

func newRelay(t *testing.T, handler http.HandlerFunc) *contextstore.Relay {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := fetcher.NewClient(fetcher.Config{Timeout: time.Second}, telemetry.NewBus())
	return contextstore.NewRelay(client, server.URL+"/api/rag/")
}

func TestRelay_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("should accept a matches envelope", func(t *testing.T) {
		relay := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/rag/search", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "personal", body["panel"])
			require.Equal(t, "context", body["query"])
			require.InDelta(t, 5, body["k"], 0)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"matches":[{"id":"m1","content":"note","score":0.7}]}`))
		})

		matches, err := relay.Search(ctx, "personal", "s1", "context", 5)

		require.NoError(t, err)
		require.Equal(t, []domain.RagMatch{{ID: "m1", Content: "note", Score: 0.7}}, matches)
	})

	t.Run("should accept a bare array", func(t *testing.T) {
		relay := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"m2","content":"other"}]`))
		})

		matches, err := relay.Search(ctx, "personal", "s1", "context", 5)

		require.NoError(t, err)
		require.Len(t, matches, 1)
		require.Equal(t, "m2", matches[0].ID)
	})

	t.Run("should surface backend failures", func(t *testing.T) {
		relay := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := relay.Search(ctx, "personal", "s1", "context", 5)

		require.True(t, fetcher.IsStatus(err, http.StatusBadGateway))
	})
}

func TestRelay_Store(t *testing.T) {
	var got map[string]string
	relay := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/rag/store", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := relay.Store(context.Background(), "personal", "s1", "q\n---\na")

	require.NoError(t, err)
	require.Equal(t, map[string]string{"panel": "personal", "sessionId": "s1", "chunk": "q\n---\na"}, got)
}
