package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bochiedev/tulia-retrieval/internal/external"
	"github.com/bochiedev/tulia-retrieval/internal/handler"
	"github.com/bochiedev/tulia-retrieval/internal/hybrid"
	"github.com/bochiedev/tulia-retrieval/internal/index/keyword"
	"github.com/bochiedev/tulia-retrieval/internal/index/vector"
	"github.com/bochiedev/tulia-retrieval/internal/orchestrator"
	"github.com/bochiedev/tulia-retrieval/internal/pipeline"
	"github.com/bochiedev/tulia-retrieval/internal/records"
	"github.com/bochiedev/tulia-retrieval/internal/retrievallog"
	"github.com/bochiedev/tulia-retrieval/internal/searchcache"
	"github.com/bochiedev/tulia-retrieval/internal/synthesis"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	"github.com/bochiedev/tulia-retrieval/pkg/health"
	"github.com/bochiedev/tulia-retrieval/pkg/kafka"
	"github.com/bochiedev/tulia-retrieval/pkg/logger"
	"github.com/bochiedev/tulia-retrieval/pkg/metrics"
	"github.com/bochiedev/tulia-retrieval/pkg/middleware"
	"github.com/bochiedev/tulia-retrieval/pkg/postgres"
	pkgredis "github.com/bochiedev/tulia-retrieval/pkg/redis"
)

const embeddingDims = 256

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting retrieval service", "port", cfg.Server.Port, "vector_backend", cfg.Vector.Backend)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	var vectorIndex vector.Index
	switch cfg.Vector.Backend {
	case "chroma":
		chromaIndex, err := vector.NewChroma(cfg.Vector.ChromaURL, cfg.Vector.CollectionPrefix)
		if err != nil {
			slog.Error("failed to connect to chroma", "url", cfg.Vector.ChromaURL, "error", err)
			os.Exit(1)
		}
		vectorIndex = chromaIndex
		slog.Info("vector index ready", "backend", "chroma", "url", cfg.Vector.ChromaURL)
	default:
		vectorIndex = vector.NewMemory(vector.NewHashingEmbedder(embeddingDims))
		slog.Info("vector index ready", "backend", "memory", "dims", embeddingDims)
	}
	keywordIndex := keyword.New()
	engine := hybrid.New(vectorIndex, keywordIndex, cfg.Retrieval)

	var recordStore records.Store
	var pgClient *postgres.Client
	pgClient, err = postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, using in-memory record store", "error", err)
		recordStore = records.NewMemoryStore()
	} else {
		defer pgClient.Close()
		recordStore = records.NewPostgresStore(pgClient)
		slog.Info("record store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	accessor := records.NewAccessor(recordStore, cfg.Retrieval.MinDescriptionLength)

	var cacheStore searchcache.Store
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, using in-memory search cache", "error", err)
		cacheStore = searchcache.NewMemory()
	} else {
		defer redisClient.Close()
		cacheStore = searchcache.NewRedis(redisClient)
		slog.Info("search cache ready", "addr", cfg.Redis.Addr)
	}

	var connector *external.Connector
	if cfg.External.Endpoint != "" {
		provider := external.NewHTTPProvider(cfg.External.Endpoint, cfg.External.APIKey, cfg.External.Timeout)
		connector = external.NewConnector(provider, cacheStore, cfg.External, external.WithMetrics(m))
		slog.Info("external search enabled", "endpoint", cfg.External.Endpoint)
	} else {
		slog.Info("external search disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var collector *retrievallog.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RetrievalLog)
		collector = retrievallog.NewCollector(producer, 100, 0)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("retrieval log collector started", "topic", cfg.Kafka.Topics.RetrievalLog)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	var externalSource orchestrator.ExternalSource
	if connector != nil {
		externalSource = connector
	}
	orch := orchestrator.New(engine, accessor, externalSource, cfg.Retrieval, orchOpts...)
	synth := synthesis.New(cfg.Retrieval, synthesis.WithMetrics(m))

	pipeOpts := []pipeline.Option{}
	if collector != nil {
		pipeOpts = append(pipeOpts, pipeline.WithCollector(collector))
	}
	pipe := pipeline.New(orch, synth, cfg.Retrieval, pipeOpts...)

	checker := health.NewChecker()
	checker.Register("keyword_index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d tenants", keywordIndex.TenantCount())}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var cacheStats handler.CacheStats
	if connector != nil {
		cacheStats = connector
	}
	h := handler.New(pipe, cacheStore, cacheStats, cfg.Retrieval.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/retrieve", h.Retrieve)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStatsHandler)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("retrieval service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("retrieval service stopped")
}
