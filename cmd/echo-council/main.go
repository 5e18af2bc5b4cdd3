// Command echo-council serves a local stand-in for the council backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidbz/council-relay/internal/config"
	"github.com/davidbz/council-relay/internal/council/echo"
	"github.com/davidbz/council-relay/internal/httpserver/middleware"
	"github.com/davidbz/council-relay/internal/observability"
)

func main() {
	cfg := config.Load()
	if _, err := observability.InitLogger(&cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	council := echo.NewCouncil(echo.Config{
		CouncilPath:       cfg.Council.Path,
		RAGPath:           cfg.Memory.RAGPath,
		StreamUnsupported: cfg.Echo.StreamUnsupported,
		ChunkDelay:        time.Duration(cfg.Echo.ChunkDelayMillis) * time.Millisecond,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Echo.Port),
		Handler:           middleware.Trace()(council.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	observability.FromContext(ctx).Info("starting echo council",
		observability.Int("port", cfg.Echo.Port),
		observability.Bool("stream_unsupported", cfg.Echo.StreamUnsupported),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Echo council failed: %v", err)
	}
}
