package echo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/contextstore"
	"github.com/davidbz/council-relay/internal/council/echo"
	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/sse"
	"github.com/davidbz/council-relay/internal/telemetry"
)

func newCouncilClient(t *testing.T, config echo.Config) (*fetcher.CouncilClient, *fetcher.Client, string) {
	t.Helper()
	server := httptest.NewServer(echo.NewCouncil(config).Handler())
	t.Cleanup(server.Close)

	client := fetcher.NewClient(fetcher.Config{Timeout: time.Second, IdleTimeout: time.Second}, telemetry.NewBus())
	council := fetcher.NewCouncilClient(client, fetcher.CouncilConfig{
		Endpoint:   server.URL + "/api/council",
		RetryLimit: fetcher.DefaultRetryLimit,
	})
	return council, client, server.URL
}

func TestCouncil_Complete(t *testing.T) {
	council, _, _ := newCouncilClient(t, echo.Config{ChunkDelay: -1})

	reply, err := council.Complete(context.Background(), domain.StreamRequest{
		Text:      "hello there",
		SessionID: "s1",
		Panel:     "work",
	})

	require.NoError(t, err)
	require.Equal(t, "[work] echo: hello there", reply.Text(""))
}

func TestCouncil_Stream(t *testing.T) {
	t.Run("should stream context, deltas and done", func(t *testing.T) {
		council, _, _ := newCouncilClient(t, echo.Config{ChunkDelay: -1})

		var frames []sse.Frame
		err := council.Stream(context.Background(), domain.StreamRequest{
			Text:      "one two",
			SessionID: "s1",
			Metadata:  map[string]any{"context": []string{"remembered"}},
		}, func(frame sse.Frame) {
			frames = append(frames, frame)
		})
		require.NoError(t, err)

		require.IsType(t, sse.ContextFrame{}, frames[0])
		require.Equal(t, "remembered", frames[0].(sse.ContextFrame).Retrieved[0].Content)

		var text strings.Builder
		for _, frame := range frames[1 : len(frames)-1] {
			delta, ok := frame.(sse.DeltaFrame)
			require.True(t, ok)
			require.NotEmpty(t, delta.TraceID)
			text.WriteString(delta.Token)
		}

		final, ok := frames[len(frames)-1].(sse.DoneFrame)
		require.True(t, ok)
		require.Equal(t, "[s1] echo: one two", final.Reply)
		require.Equal(t, final.Reply, text.String())
		require.Equal(t, 4, final.TokensUsed)
	})

	t.Run("should answer 501 when streaming is disabled", func(t *testing.T) {
		council, _, _ := newCouncilClient(t, echo.Config{StreamUnsupported: true})

		err := council.Stream(context.Background(), domain.StreamRequest{Text: "x"}, func(sse.Frame) {})

		require.True(t, fetcher.IsStatus(err, http.StatusNotImplemented))
	})
}

func TestCouncil_RAG(t *testing.T) {
	_, client, baseURL := newCouncilClient(t, echo.Config{})
	store := contextstore.NewRelay(client, baseURL+"/api/rag")
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "personal", "s1", "first"))
	require.NoError(t, store.Store(ctx, "personal", "s1", "second"))
	require.NoError(t, store.Store(ctx, "work", "s1", "elsewhere"))

	matches, err := store.Search(ctx, "personal", "s1", "context", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "second", matches[0].Content)

	matches, err = store.Search(ctx, "personal", "s1", "context", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}
