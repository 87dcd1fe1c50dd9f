// Package app wires configuration into the running components shared by the
// service and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/archive"
	"github.com/ILLUVRSE/serverquality/internal/auth"
	"github.com/ILLUVRSE/serverquality/internal/config"
	"github.com/ILLUVRSE/serverquality/internal/enhance"
	"github.com/ILLUVRSE/serverquality/internal/httpserver"
	"github.com/ILLUVRSE/serverquality/internal/ranking"
	"github.com/ILLUVRSE/serverquality/internal/store"
	"github.com/ILLUVRSE/serverquality/internal/stream"
	"github.com/ILLUVRSE/serverquality/internal/telemetry"
	"github.com/ILLUVRSE/serverquality/internal/tracker"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    store.Store
	Recorder *tracker.Recorder
	Ranking  *ranking.Service
	Enhancer *enhance.Adapter
	Verifier *auth.Verifier
	Registry *prometheus.Registry

	closers []func() error
}

// OpenStore opens the configured backend and makes sure its schema exists.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.OpenSQLite(ctx, cfg.DSN)
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		s := store.NewPGStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// New builds every component from cfg. Kafka publishing and S3 archiving are
// only enabled when brokers or a bucket are configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: st}
	a.closers = append(a.closers, st.Close)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Verifier = verifier

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := telemetry.New(a.Registry)

	opts := []tracker.Option{
		tracker.WithMetrics(met),
		tracker.WithWriteTimeout(cfg.Store.WriteTimeout),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := stream.NewKafkaProducer(stream.KafkaProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			MaxAttempts:  cfg.Kafka.Retries,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub := stream.NewEventPublisher(producer, logger)
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, tracker.WithPublisher(pub))
		logger.Info("event stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.Archive.Bucket != "" {
		arch, err := archive.NewS3Archiver(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("s3 archiver: %w", err)
		}
		opts = append(opts, tracker.WithArchiver(arch))
		logger.Info("retention archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	a.Recorder = tracker.NewRecorder(st, logger, opts...)
	a.closers = append(a.closers, func() error {
		a.Recorder.Flush()
		return nil
	})
	a.Ranking = ranking.NewService(st, logger,
		ranking.WithReadTimeout(cfg.Store.ReadTimeout),
		ranking.WithAlternativeMargin(cfg.Quality.AlternativeMargin))
	a.Enhancer = enhance.NewAdapter(a.Ranking, logger,
		enhance.WithMinAttempts(cfg.Quality.MinAttempts),
		enhance.WithConcurrency(cfg.Quality.EnhanceConcurrency),
		enhance.WithMetrics(met))
	return a, nil
}

// Server returns the HTTP API over this app's components.
func (a *App) Server() *httpserver.Server {
	return httpserver.New(httpserver.Deps{
		Store:       a.Store,
		Recorder:    a.Recorder,
		Ranking:     a.Ranking,
		Enhancer:    a.Enhancer,
		Verifier:    a.Verifier,
		Gatherer:    a.Registry,
		Logger:      a.Logger,
		MinAttempts: a.Config.Quality.MinAttempts,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
