package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/config"
	"github.com/davidbz/council-relay/internal/httpserver/middleware"
	"github.com/davidbz/council-relay/internal/observability"
)

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := middleware.Chain(tag("outer"), tag("inner"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestTrace(t *testing.T) {
	t.Run("should inject generated IDs into context and headers", func(t *testing.T) {
		var traceID, requestID string
		handler := middleware.Trace()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			traceID = observability.GetTraceID(r.Context())
			requestID = observability.GetRequestID(r.Context())
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Len(t, traceID, 32)
		require.NotEmpty(t, requestID)
		require.Equal(t, traceID, w.Header().Get("X-Trace-Id"))
		require.Equal(t, requestID, w.Header().Get("X-Request-Id"))
	})

	t.Run("should keep an incoming trace ID", func(t *testing.T) {
		var traceID string
		handler := middleware.Trace()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			traceID = observability.GetTraceID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Trace-Id", "ui-trace")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, "ui-trace", traceID)
	})
}

func TestCORS(t *testing.T) {
	handler := middleware.CORS(&config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Trace-Id")
}
