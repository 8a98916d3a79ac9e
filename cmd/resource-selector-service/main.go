package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/auth"
	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/config"
	"github.com/ILLUVRSE/resource-selector/internal/feedback"
	"github.com/ILLUVRSE/resource-selector/internal/httpserver"
	"github.com/ILLUVRSE/resource-selector/internal/logging"
	"github.com/ILLUVRSE/resource-selector/internal/metrics"
	"github.com/ILLUVRSE/resource-selector/internal/selection"
	"github.com/ILLUVRSE/resource-selector/internal/sentinel"
	"github.com/ILLUVRSE/resource-selector/internal/service"
	"github.com/ILLUVRSE/resource-selector/internal/telemetry"
)

var version = "dev"

func main() {
	catalogFile := flag.String("catalog", "", "YAML catalog to seed on startup (overrides RESOURCE_SELECTOR_CATALOG_FILE)")
	noRotate := flag.Bool("no-rotate", false, "disable the feedback rotation worker")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	if *catalogFile != "" {
		cfg.CatalogFile = *catalogFile
	}
	logger, err := logging.New(cfg.LogLevel, cfg.DevLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, !*noRotate); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger, rotate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "resource-selector",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRate:     cfg.TraceSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	registry, err := buildCatalog(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	gate, err := buildGate(cfg, logger, m)
	if err != nil {
		return err
	}
	feedbackLog, closeLog, err := buildFeedbackLog(cfg, db)
	if err != nil {
		return err
	}
	defer closeLog()

	var publisher *feedback.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := feedback.NewKafkaProducer(feedback.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		publisher = feedback.NewPublisher(producer, feedback.PublisherConfig{Logger: logger, Metrics: m})
		// Workers outlive the main context so Close can drain the queue.
		publisher.Start(context.WithoutCancel(ctx))
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("feedback publisher close", zap.Error(err))
			}
		}()
		logger.Info("feedback publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	if rotate {
		var archiver feedback.Archiver
		if cfg.S3Bucket != "" {
			s3Archiver, err := feedback.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				return fmt.Errorf("s3 archiver init: %w", err)
			}
			archiver = s3Archiver
		}
		rotator := feedback.NewRotator(feedbackLog, archiver, feedback.RotatorConfig{
			RetentionPerResource: cfg.FeedbackRetention,
			PollInterval:         cfg.FeedbackRotateInterval,
			Logger:               logger,
		})
		go rotator.Run(ctx)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		PublicKeyFile:   cfg.JWTPublicKeyFile,
		AllowDebugToken: cfg.AllowDebugToken,
		DebugToken:      cfg.DebugToken,
	})
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	svcCfg := service.Config{
		Catalog:          registry,
		Gate:             gate,
		Feedback:         feedbackLog,
		Scorer:           selection.NewScorer(nil),
		BatchConcurrency: cfg.BatchConcurrency,
		Logger:           logger,
		Metrics:          m,
	}
	if publisher != nil {
		svcCfg.Publisher = publisher
	}
	svc := service.New(svcCfg)
	server := httpserver.New(svc, httpserver.Options{Auth: verifier, Gatherer: reg, Logger: logger})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("resource selector listening", zap.String("addr", cfg.Addr), zap.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return waitForShutdown(cancel, httpServer, errCh, logger)
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// buildCatalog prefers Postgres when a database is configured. A catalog
// file, when given, is upserted on top of whatever the backend holds.
func buildCatalog(ctx context.Context, cfg config.Config, db *sql.DB, logger *zap.Logger) (catalog.Registry, error) {
	var registry catalog.Registry = catalog.NewMemoryCatalog()
	if db != nil {
		registry = catalog.NewPGStore(db)
	}
	if cfg.CatalogFile == "" {
		return registry, nil
	}
	descs, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	if err := catalog.Seed(ctx, registry, descs); err != nil {
		return nil, err
	}
	logger.Info("catalog seeded", zap.String("file", cfg.CatalogFile), zap.Int("resources", len(descs)))
	return registry, nil
}

func buildGate(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (*sentinel.Gate, error) {
	var client sentinel.Client = sentinel.NewStaticClient(cfg.SentinelDenyList)
	switch {
	case cfg.SentinelURL != "":
		httpClient, err := sentinel.NewHTTPClient(sentinel.HTTPClientConfig{
			BaseURL: cfg.SentinelURL,
			Timeout: cfg.SentinelTimeout,
			Retries: cfg.SentinelRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("sentinel client init: %w", err)
		}
		client = httpClient
	case cfg.SentinelPolicyExpr != "":
		celClient, err := sentinel.NewCELClient(cfg.SentinelPolicyExpr)
		if err != nil {
			return nil, fmt.Errorf("sentinel policy expression: %w", err)
		}
		client = celClient
	}
	return sentinel.NewGate(sentinel.GateConfig{
		Client:   client,
		Strategy: sentinel.StrategyFor(cfg.SentinelFailMode),
		Timeout:  cfg.SentinelTimeout,
		Logger:   logger,
		Metrics:  m,
	}), nil
}

func buildFeedbackLog(cfg config.Config, db *sql.DB) (feedback.Log, func(), error) {
	switch cfg.FeedbackBackend {
	case config.FeedbackBackendPostgres:
		return feedback.NewPGStore(db), func() {}, nil
	case config.FeedbackBackendRedis:
		rl := feedback.NewRedisLog(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return rl, func() { _ = rl.Close() }, nil
	default:
		return feedback.NewMemoryLog(), func() {}, nil
	}
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server, errCh <-chan error, logger *zap.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var serveErr error
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	cancel()
	return serveErr
}
