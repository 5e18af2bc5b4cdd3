package fetcher_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/sse"
	"github.com/davidbz/council-relay/internal/telemetry"
)

type sampleLog struct {
	mu      sync.Mutex
	samples []telemetry.Sample
}

func (s *sampleLog) Publish(_ context.Context, sample telemetry.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func (s *sampleLog) all() []telemetry.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Sample(nil), s.samples...)
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(recorder telemetry.Recorder, sleeps *sleepLog, idle time.Duration) *fetcher.Client {
	return fetcher.NewClient(
		fetcher.Config{Timeout: 5 * time.Second, IdleTimeout: idle},
		recorder,
		fetcher.WithSleeper(sleeps.sleep),
	)
}

func TestClient_Call(t *testing.T) {
	t.Run("should retry a 429 transparently and emit one sample per attempt", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.Equal(t, "application/json", r.Header.Get("Accept"))
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"reply":"pong"}`))
		}))
		defer server.Close()

		samples := &sampleLog{}
		sleeps := &sleepLog{}
		client := newTestClient(samples, sleeps, 0)

		result, err := client.Call(context.Background(), server.URL, map[string]string{"text": "ping"}, fetcher.Options{
			Backoff:    true,
			RetryLimit: fetcher.DefaultRetryLimit,
		})

		require.NoError(t, err)
		require.Equal(t, http.StatusOK, result.Status)
		require.Equal(t, map[string]any{"reply": "pong"}, result.Body)

		recorded := samples.all()
		require.Len(t, recorded, 2)
		require.Equal(t, http.StatusTooManyRequests, recorded[0].Status)
		require.Equal(t, 1, recorded[0].Attempt)
		require.Equal(t, http.StatusOK, recorded[1].Status)
		require.Equal(t, 2, recorded[1].Attempt)
		require.Equal(t, []time.Duration{250 * time.Millisecond}, sleeps.delays)
	})

	t.Run("should surface 429 once the retry limit is spent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		}))
		defer server.Close()

		samples := &sampleLog{}
		sleeps := &sleepLog{}
		client := newTestClient(samples, sleeps, 0)

		_, err := client.Call(context.Background(), server.URL, map[string]string{}, fetcher.Options{
			Backoff:    true,
			RetryLimit: 2,
		})

		var fetchErr *fetcher.Error
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, http.StatusTooManyRequests, fetchErr.Status)
		require.Equal(t, "slow down", fetchErr.Body)
		require.Len(t, samples.all(), 3)
		require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, sleeps.delays)
	})

	t.Run("should report budget exhaustion when the limit exceeds the delay table", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		samples := &sampleLog{}
		client := newTestClient(samples, &sleepLog{}, 0)

		_, err := client.Call(context.Background(), server.URL, map[string]string{}, fetcher.Options{
			Backoff:    true,
			RetryLimit: 10,
		})

		require.ErrorIs(t, err, fetcher.ErrRetryBudgetExhausted)
		require.True(t, fetcher.IsStatus(err, http.StatusTooManyRequests))
		require.Len(t, samples.all(), len(fetcher.RetryDelays)+1)
	})

	t.Run("should not retry without backoff", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 0)

		_, err := client.Call(context.Background(), server.URL, map[string]string{}, fetcher.Options{RetryLimit: 4})

		require.True(t, fetcher.IsStatus(err, http.StatusTooManyRequests))
		require.Equal(t, int32(1), hits.Load())
	})

	t.Run("should return an explicit no-content result for 204", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 0)

		result, err := client.Call(context.Background(), server.URL, nil, fetcher.Options{})

		require.NoError(t, err)
		require.True(t, result.NoContent)
		require.Nil(t, result.Body)
	})

	t.Run("should parse a JSON error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream"}`))
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 0)

		_, err := client.Call(context.Background(), server.URL, map[string]string{}, fetcher.Options{})

		var fetchErr *fetcher.Error
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, http.StatusBadGateway, fetchErr.Status)
		require.Equal(t, server.URL, fetchErr.URL)
		require.Equal(t, map[string]any{"error": "upstream"}, fetchErr.Body)
		require.Contains(t, fetchErr.Error(), "502")
	})

	t.Run("should report transport failures with the sentinel status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()

		samples := &sampleLog{}
		client := newTestClient(samples, &sleepLog{}, 0)

		_, err := client.Call(context.Background(), url, map[string]string{}, fetcher.Options{})

		var fetchErr *fetcher.Error
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, fetcher.StatusTransport, fetchErr.Status)
		require.Nil(t, fetchErr.Body)
		require.Len(t, samples.all(), 1)
	})

	t.Run("should return text bodies as strings", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 0)

		result, err := client.Call(context.Background(), server.URL, nil, fetcher.Options{})

		require.NoError(t, err)
		require.Equal(t, "ok", result.Body)
	})
}

func TestClient_OpenStream(t *testing.T) {
	t.Run("should hand frames over incrementally and record one sample at the end", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			flusher := w.(http.Flusher)
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, `data: {"type":"delta","token":"Hel"}`+"\n\n")
			flusher.Flush()
			<-release
			fmt.Fprint(w, `data: {"type":"done","reply":"Hello"}`+"\n\n")
			flusher.Flush()
		}))
		defer server.Close()

		samples := &sampleLog{}
		client := newTestClient(samples, &sleepLog{}, 0)

		frames := make(chan sse.Frame, 4)
		errCh := make(chan error, 1)
		go func() {
			errCh <- client.OpenStream(context.Background(), server.URL, map[string]string{}, func(f sse.Frame) {
				frames <- f
			})
		}()

		require.Equal(t, sse.DeltaFrame{Token: "Hel"}, <-frames)
		require.Empty(t, samples.all())
		close(release)

		require.NoError(t, <-errCh)
		require.Equal(t, sse.DoneFrame{Reply: "Hello"}, <-frames)

		recorded := samples.all()
		require.Len(t, recorded, 1)
		require.Equal(t, 1, recorded[0].Attempt)
		require.Equal(t, http.StatusOK, recorded[0].Status)
	})

	t.Run("should fail with the server status when the stream is refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotImplemented)
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 0)

		err := client.OpenStream(context.Background(), server.URL, map[string]string{}, func(sse.Frame) {})

		require.True(t, fetcher.IsStatus(err, http.StatusNotImplemented))
	})

	t.Run("should abort a stream that goes idle", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `data: {"type":"delta","token":"a"}`+"\n\n")
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		}))
		defer server.Close()

		client := newTestClient(&sampleLog{}, &sleepLog{}, 50*time.Millisecond)

		var received []sse.Frame
		err := client.OpenStream(context.Background(), server.URL, map[string]string{}, func(f sse.Frame) {
			received = append(received, f)
		})

		require.ErrorIs(t, err, fetcher.ErrStreamIdle)
		require.True(t, fetcher.IsStatus(err, fetcher.StatusTransport))
		require.Len(t, received, 1)
	})
}

func TestCouncilClient(t *testing.T) {
	t.Run("should post the normalized payload and extract the reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `{"text":"ping","sessionId":"s-1","stream":false,
				"metadata":{"source":"ui","ts":1700000000000,"timestamp":1700000000000,"panel":"ops"}}`, string(body))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"message":"pong"}`))
		}))
		defer server.Close()

		client := fetcher.NewClient(fetcher.Config{}, nil,
			fetcher.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
		council := fetcher.NewCouncilClient(client, fetcher.CouncilConfig{Endpoint: server.URL + "/api/council"})

		reply, err := council.Complete(context.Background(), domain.StreamRequest{
			Text:      "  ping ",
			SessionID: " s-1 ",
			Panel:     "ops",
			Metadata:  nil,
		})

		require.NoError(t, err)
		require.Equal(t, "pong", reply.Text("default"))
	})

	t.Run("should stream from the sibling endpoint", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			fmt.Fprint(w, `data: {"type":"done","reply":"ok"}`+"\n\n")
		}))
		defer server.Close()

		council := fetcher.NewCouncilClient(fetcher.NewClient(fetcher.Config{}, nil),
			fetcher.CouncilConfig{Endpoint: server.URL + "/api/council/"})

		var frames []sse.Frame
		err := council.Stream(context.Background(), domain.StreamRequest{Text: "hi"}, func(f sse.Frame) {
			frames = append(frames, f)
		})

		require.NoError(t, err)
		require.Equal(t, "/api/council/stream", path)
		require.Len(t, frames, 1)
	})
}

func TestBuildCouncilPayload(t *testing.T) {
	now := time.UnixMilli(42)

	payload := fetcher.BuildCouncilPayload(context.Background(), domain.StreamRequest{
		Text:     "",
		Metadata: map[string]any{"source": "forward", "timestamp": 7},
	}, true, now)

	require.Equal(t, "personal", payload.SessionID)
	require.True(t, payload.Stream)
	require.Equal(t, "forward", payload.Metadata["source"])
	require.Equal(t, int64(42), payload.Metadata["ts"])
	require.Equal(t, 7, payload.Metadata["timestamp"])
}
