// Command graphload-demo wires a loader against a MySQL-compatible
// database: it registers a small blog schema, issues a burst of loads
// that coalesce into one flush, and serves Prometheus metrics.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"graphload"
	"graphload/internal/config"
	"graphload/internal/logging"
	"graphload/internal/observability"
	"graphload/schema"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("demo error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx := context.Background()
	var metrics *observability.LoaderMetrics
	if cfg.Telemetry.Enabled {
		otelCfg := observability.Config{
			ServiceName:      "graphload-demo",
			ServiceVersion:   Version,
			TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
			OTLPEndpoint:     cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure:     cfg.Telemetry.OTLPInsecure,
		}
		meterProvider, err := observability.InitMeterProvider(otelCfg)
		if err != nil {
			return err
		}
		defer func() { _ = meterProvider.Shutdown(ctx, logger.Logger) }()

		tracerProvider, err := observability.InitTracerProvider(ctx, otelCfg)
		if err != nil {
			return err
		}
		defer func() { _ = tracerProvider.Shutdown(ctx, logger.Logger) }()

		if metrics, err = observability.InitLoaderMetrics(); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Telemetry.MetricsAddr, mux); err != nil {
				logger.Error("metrics endpoint stopped", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := openDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	registry, err := blogRegistry()
	if err != nil {
		return err
	}

	loader := graphload.New(graphload.Options{
		DB:           db,
		Registry:     registry,
		FlushWindow:  cfg.Loader.FlushWindow,
		MaxBatchSize: cfg.Loader.MaxBatchSize,
		Logger:       logger,
		Metrics:      metrics,
	})
	defer loader.Close()

	// Issue a burst before yielding: all three land in one flush.
	post := loader.LoadOne(ctx, "Post", map[string]any{"id": 1}, nil)
	owner := loader.LoadOne(ctx, "User", map[string]any{"id": 1}, nil)
	posts := loader.LoadMany(ctx, "Post", map[string]any{"ownerId": 1}, nil)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	postEntity, err := post.Get(waitCtx)
	if err != nil {
		return err
	}
	ownerEntity, err := owner.Get(waitCtx)
	if err != nil {
		return err
	}
	postEntities, err := posts.Get(waitCtx)
	if err != nil {
		return err
	}

	stats := loader.Stats()
	logger.Info("demo complete",
		slog.Any("post", postEntity),
		slog.Any("owner", ownerEntity),
		slog.Int("owner_posts", len(postEntities)),
		slog.Uint64("batches", stats.Batches),
		slog.Uint64("cache_misses", stats.CacheMisses),
	)
	return nil
}

func openDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	if cfg.Telemetry.Enabled {
		db, err = otelsql.Open("mysql", cfg.Database.DSN,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		)
		if err == nil {
			if _, statsErr := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); statsErr != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", statsErr.Error()))
			}
		}
	} else {
		db, err = sql.Open("mysql", cfg.Database.DSN)
	}
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

func blogRegistry() (*schema.Registry, error) {
	registry := schema.NewRegistry()
	registry.MustRegister(schema.Entity{
		Name: "User",
		Columns: []schema.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "email"},
			{Name: "displayName"},
		},
		Relations: []schema.Relation{
			{Name: "posts", Target: "Post", Inverse: "owner", ToMany: true, RemoteColumn: "owner_id"},
		},
	})
	registry.MustRegister(schema.Entity{
		Name: "Post",
		Columns: []schema.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "ownerId"},
			{Name: "title"},
			{Name: "content"},
		},
		Relations: []schema.Relation{
			{Name: "owner", Target: "User", Inverse: "posts", LocalColumn: "owner_id"},
		},
	})
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}
