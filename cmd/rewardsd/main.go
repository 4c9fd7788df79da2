// Package main is the entry point of rewardsd, the liquidity rewards
// accounting service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/circuitbreaker"
	"github.com/sbellem/SiennaNetwork/internal/config"
	"github.com/sbellem/SiennaNetwork/internal/contract"
	"github.com/sbellem/SiennaNetwork/internal/export"
	"github.com/sbellem/SiennaNetwork/internal/otel"
	"github.com/sbellem/SiennaNetwork/internal/scheduler"
	"github.com/sbellem/SiennaNetwork/internal/security"
	"github.com/sbellem/SiennaNetwork/internal/server"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/store/postgres"
)

func main() {
	setupLogging()

	if err := run(); err != nil {
		logrus.Fatalf("rewardsd: %v", err)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	breaker := circuitbreaker.New(circuitbreaker.Thresholds{MaxFailures: cfg.BreakerFailures}).
		WithResetDelay(cfg.BreakerCooldown).
		WithSuccessThreshold(cfg.BreakerSuccesses).
		WithTripCallback(func(reason string) {
			logrus.Warnf("Budget query circuit opened: %s", reason)
		})

	signer, err := security.NewSigner(cfg.SigningKey)
	if err != nil {
		return err
	}

	options := []contract.Option{
		contract.WithBreaker(breaker),
		contract.WithMetrics(contract.NewMetrics(reg)),
		contract.WithSigner(signer),
	}

	var exporter *export.Exporter
	if cfg.WebhookURL != "" {
		exporter, err = export.NewExporter(export.ExporterConfig{
			BatchSize:      cfg.ExportBatchSize,
			ExportInterval: cfg.ExportInterval,
			WebhookURL:     cfg.WebhookURL,
			WebhookAPIKey:  cfg.WebhookAPIKey,
		})
		if err != nil {
			return err
		}
		exporter.Start(ctx)
		defer func() {
			if err := exporter.Stop(context.Background()); err != nil {
				logrus.Errorf("Final export failed: %v", err)
			}
		}()
		options = append(options, contract.WithSink(func(r contract.Receipt) {
			exporter.Add(export.Record{Type: "receipt", Data: r})
		}))
	}

	exec := contract.New(st, options...)

	genesis, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		return err
	}
	if genesis != nil {
		if err := exec.Genesis(ctx, genesis); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}

	if cfg.SnapshotCron != "" {
		var sink scheduler.Sink
		if exporter != nil {
			sink = exporter
		}
		sched := scheduler.New(exec, sink, reg)
		if err := sched.Register(cfg.SnapshotCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	return server.New(cfg, exec, reg, reg).Start(ctx)
}

// openStore opens the configured backend and returns its close function
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logrus.WithField("path", cfg.SQLitePath).Info("Using sqlite store")
		return db, func() { _ = db.Close() }, nil

	case config.BackendPostgres:
		if err := postgres.Up(ctx, cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logrus.Info("Using postgres store")
		return db, db.Close, nil

	default:
		logrus.Warn("Using in-memory store, state is lost on exit")
		return store.NewMemory(), func() {}, nil
	}
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
