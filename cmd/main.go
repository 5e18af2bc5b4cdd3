package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/council-relay/internal/config"
	"github.com/davidbz/council-relay/internal/contextstore"
	"github.com/davidbz/council-relay/internal/contextstore/redis"
	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/embedding/openai"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/httpserver"
	"github.com/davidbz/council-relay/internal/httpserver/middleware"
	"github.com/davidbz/council-relay/internal/lifecycle"
	"github.com/davidbz/council-relay/internal/members"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/orchestrator"
	"github.com/davidbz/council-relay/internal/scheduler"
	"github.com/davidbz/council-relay/internal/telemetry"
	"github.com/davidbz/council-relay/internal/turnstore"
)

const shutdownTimeout = 15 * time.Second

// ErrUnknownBackend indicates an unsupported MEMORY_BACKEND value.
var ErrUnknownBackend = errors.New("unknown memory backend")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server, orch *orchestrator.Orchestrator) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := orch.Wait(shutdownCtx); err != nil {
			observability.FromContext(shutdownCtx).Warn("outstanding council work abandoned", observability.Error(err))
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Relay stopped: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(telemetry.NewBus); err != nil {
		log.Fatalf("Failed to provide latency bus: %v", err)
	}
	if err := container.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide metrics registry: %v", err)
	}
	if err := container.Provide(func(reg *prometheus.Registry) prometheus.Gatherer {
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide metrics gatherer: %v", err)
	}

	// Network
	if err := container.Provide(func(cfg *config.CouncilConfig, bus *telemetry.Bus) *fetcher.Client {
		return fetcher.NewClient(fetcher.Config{
			Timeout:     cfg.RequestTimeoutDuration(),
			IdleTimeout: cfg.IdleTimeoutDuration(),
		}, bus)
	}); err != nil {
		log.Fatalf("Failed to provide network client: %v", err)
	}
	if err := container.Provide(func(client *fetcher.Client, cfg *config.CouncilConfig) *fetcher.CouncilClient {
		return fetcher.NewCouncilClient(client, fetcher.CouncilConfig{
			Endpoint:   cfg.Endpoint(),
			RetryLimit: cfg.RetryLimit,
		})
	}); err != nil {
		log.Fatalf("Failed to provide council client: %v", err)
	}

	// Storage
	if err := container.Provide(provideContextStore); err != nil {
		log.Fatalf("Failed to provide context store: %v", err)
	}
	if err := container.Provide(turnstore.NewStore); err != nil {
		log.Fatalf("Failed to provide turn store: %v", err)
	}
	if err := container.Provide(func(store *turnstore.Store) domain.TurnStore {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide turn store interface: %v", err)
	}
	if err := container.Provide(func(store *turnstore.Store) httpserver.TurnSubscriber {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide turn feed: %v", err)
	}
	if err := container.Provide(provideMembers); err != nil {
		log.Fatalf("Failed to provide member registry: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		turns domain.TurnStore,
		memory domain.ContextStore,
		council *fetcher.CouncilClient,
		councilCfg *config.CouncilConfig,
		memoryCfg *config.MemoryConfig,
	) *lifecycle.Manager {
		return lifecycle.NewManager(turns, memory, council, lifecycle.Config{
			ForwardPause: councilCfg.ForwardPause(),
			SearchLimit:  memoryCfg.SearchLimit,
		})
	}); err != nil {
		log.Fatalf("Failed to provide lifecycle manager: %v", err)
	}
	if err := container.Provide(func(
		council *fetcher.CouncilClient,
		lc *lifecycle.Manager,
		cfg *config.CouncilConfig,
		reg *prometheus.Registry,
	) (*scheduler.Scheduler, error) {
		sched := scheduler.New(council, lc, cfg.StreamLimit)
		if err := scheduler.RegisterMetrics(reg, sched); err != nil {
			return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
		}
		return sched, nil
	}); err != nil {
		log.Fatalf("Failed to provide scheduler: %v", err)
	}
	if err := container.Provide(func(
		lc *lifecycle.Manager,
		sched *scheduler.Scheduler,
		turns domain.TurnStore,
		registry domain.MemberRegistry,
		cfg *config.CouncilConfig,
	) *orchestrator.Orchestrator {
		return orchestrator.New(lc, sched, turns, registry, orchestrator.Config{DefaultPanel: cfg.DefaultPanel})
	}); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	// Install the global logger before anything logs (invoked for side effects)
	if err := container.Invoke(func(*zap.Logger) {}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Mirror latency samples into Prometheus (invoked for side effects)
	if err := container.Invoke(func(bus *telemetry.Bus, reg *prometheus.Registry) {
		telemetry.NewExporter(reg).Attach(bus)
	}); err != nil {
		log.Fatalf("Failed to attach latency exporter: %v", err)
	}

	return container
}

// provideContextStore selects the long-term context backend from MEMORY_BACKEND.
func provideContextStore(
	memoryCfg *config.MemoryConfig,
	councilCfg *config.CouncilConfig,
	openaiCfg *openai.Config,
	client *fetcher.Client,
) (domain.ContextStore, error) {
	switch memoryCfg.Backend {
	case "relay":
		return contextstore.NewRelay(client, councilCfg.BaseURL+memoryCfg.RAGPath), nil
	case "redis":
		gen, err := openai.NewGenerator(*openaiCfg)
		if err != nil {
			return nil, err
		}

		ctx := context.Background()
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     memoryCfg.RedisAddr,
			Password: memoryCfg.RedisPassword,
			DB:       memoryCfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		search, err := redis.NewVectorSearch(ctx, rdb, memoryCfg.IndexName, gen.Dimension())
		if err != nil {
			return nil, err
		}

		return contextstore.NewSemantic(gen, search, contextstore.SemanticConfig{
			KeyPrefix: redis.KeyPrefix,
			Threshold: memoryCfg.Threshold,
			TTL:       memoryCfg.TTL(),
		}), nil
	case "none", "":
		return contextstore.Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, memoryCfg.Backend)
	}
}

// provideMembers builds the registry and seeds it from COUNCIL_MEMBERS,
// falling back to the default roster.
func provideMembers(cfg *config.CouncilConfig) (domain.MemberRegistry, error) {
	registry := members.NewRegistry()
	ctx := context.Background()

	seed := members.DefaultRoster()
	if len(cfg.Members) > 0 {
		seed = make([]domain.CouncilMember, 0, len(cfg.Members))
		for _, spec := range cfg.Members {
			member, err := members.ParseMember(spec)
			if err != nil {
				return nil, err
			}
			seed = append(seed, member)
		}
	}

	for _, member := range seed {
		if err := registry.Register(ctx, member); err != nil {
			return nil, fmt.Errorf("failed to register member %s: %w", member.ID, err)
		}
	}

	return registry, nil
}
