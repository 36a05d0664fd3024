// Package main implements the Sightline analytics API server: natural
// language search over vehicle sighting records.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/sightline-ai/sightline/engine/search"
	"github.com/sightline-ai/sightline/engine/semantic"
	"github.com/sightline-ai/sightline/engine/source"
	"github.com/sightline-ai/sightline/pkg/embed"
	"github.com/sightline-ai/sightline/pkg/events"
	"github.com/sightline-ai/sightline/pkg/metrics"
	"github.com/sightline-ai/sightline/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	DBType       string // "cassandra" or "sqlite"
	SQLitePath   string
	CassHost     string
	CassKeyspace string
	IndexBackend string // "memory" or "qdrant"
	QdrantURL    string
	Collection   string
	OllamaURL    string
	EmbedModel   string
	NATSURL      string
	CORSOrigin   string
	DefaultTopK  int
	Threshold    float64
	RateRPS      float64
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8000"),
		DBType:       envOr("DB_TYPE", "cassandra"),
		SQLitePath:   envOr("SQLITE_PATH", "vehicles.db"),
		CassHost:     envOr("CASSANDRA_HOST", "127.0.0.1"),
		CassKeyspace: envOr("CASSANDRA_KEYSPACE", "ilens_ladakh"),
		IndexBackend: envOr("INDEX_BACKEND", "memory"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "sightings"),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:   envOr("EMBED_MODEL", "all-minilm"),
		NATSURL:      os.Getenv("NATS_URL"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		DefaultTopK:  envIntOr("DEFAULT_TOP_K", 5),
		Threshold:    envFloatOr("SIMILARITY_THRESHOLD", 0.20),
		RateRPS:      envFloatOr("RATE_LIMIT_RPS", 50),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Priority: environment, then .env file, then defaults.
	_ = godotenv.Load()
	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Record source ---
	var (
		src      source.Source
		database string
	)
	switch cfg.DBType {
	case "sqlite":
		s, err := source.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite source: %w", err)
		}
		defer s.Close()
		src = s
		database = cfg.SQLitePath
	default:
		c, err := source.NewCassandra(cfg.CassHost, cfg.CassKeyspace)
		if err != nil {
			return fmt.Errorf("connect cassandra source: %w", err)
		}
		defer c.Close()
		src = c
		database = "cassandra://" + cfg.CassHost + "/" + cfg.CassKeyspace
	}

	// --- Embedding capability ---
	embedder := embed.NewOllama(cfg.OllamaURL, cfg.EmbedModel)

	// --- Vector index ---
	var index semantic.Index
	if cfg.IndexBackend == "qdrant" {
		qi, err := semantic.NewQdrantIndex(cfg.QdrantURL, cfg.Collection, embedder, logger)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer qi.Close()
		index = qi
	} else {
		index = semantic.NewMemoryIndex(embedder, logger)
	}

	// --- Search service ---
	opts := search.DefaultOptions()
	opts.TopK = cfg.DefaultTopK
	opts.Threshold = cfg.Threshold
	svc := search.New(index, src, opts, logger)

	logger.Info("initial index build starting")
	count, err := svc.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}
	logger.Info("initial index build complete", "records", count)

	// --- Metrics ---
	reg := metrics.New()
	srvMetrics := newServerMetrics(reg)
	srvMetrics.recordsIndexed.Set(int64(count))

	// --- Eventing (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		sub, err := events.Subscribe(nc, events.RefreshSubject, func(ctx context.Context, _ struct{}) {
			start := time.Now()
			n, err := svc.Refresh(ctx)
			if err != nil {
				logger.Error("event-triggered refresh failed", "err", err)
				return
			}
			srvMetrics.refreshes.Inc()
			srvMetrics.recordsIndexed.Set(int64(n))
			announceIndexed(ctx, nc, n, time.Since(start), logger)
		})
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for refresh events", "subject", events.RefreshSubject)
	}

	// --- HTTP server ---
	api := &apiServer{
		svc:      svc,
		cfg:      cfg,
		database: database,
		model:    embedder.Model(),
		nats:     nc,
		metrics:  srvMetrics,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.handleHealth)
	mux.HandleFunc("POST /search", api.handleSearch)
	mux.HandleFunc("POST /admin/refresh", api.handleRefresh)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(cfg.RateRPS, int(cfg.RateRPS)*2),
		mid.OTel("sightline-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "db", cfg.DBType, "index", cfg.IndexBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func announceIndexed(ctx context.Context, nc *nats.Conn, count int, took time.Duration, logger *slog.Logger) {
	if nc == nil {
		return
	}
	err := events.Publish(ctx, nc, events.IndexedSubject, events.Indexed{
		Count:           count,
		DurationSeconds: took.Seconds(),
		At:              time.Now(),
	})
	if err != nil {
		logger.Warn("publish indexed event failed", "err", err)
	}
}
