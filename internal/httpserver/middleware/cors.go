package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/council-relay/internal/config"
)

// CORS creates a middleware that handles Cross-Origin Resource Sharing using
// github.com/rs/cors. Trace and request IDs are exposed to browser clients.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{traceHeader, requestHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return c.Handler
}
