package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"fixedcredit/core/events"
	"fixedcredit/native/credit"
	"fixedcredit/observability"
	"fixedcredit/observability/logging"
	telemetry "fixedcredit/observability/otel"
	"fixedcredit/services/creditd/auth"
	"fixedcredit/services/creditd/config"
	"fixedcredit/services/creditd/indexer"
	"fixedcredit/services/creditd/market"
	"fixedcredit/services/creditd/server"
	"fixedcredit/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/creditd/config.yaml", "path to creditd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("CREDITD_ENV"))
	logger, logCloser := logging.SetupWithFile("creditd", env, cfg.Log.Level, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	})
	defer logCloser.Close()

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	sampleRatio, _ := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")), 64)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "creditd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     endpoint != "",
		Traces:      endpoint != "",
		SampleRatio: sampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	params := credit.DefaultConfig()
	if cfg.Market.ParamsFile != "" {
		if params, err = credit.LoadConfig(cfg.Market.ParamsFile); err != nil {
			return fmt.Errorf("load market params: %w", err)
		}
	}

	var db storage.Database
	if cfg.State.Path != "" {
		ldb, err := storage.NewLevelDB(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state: %w", err)
		}
		db = ldb
	} else {
		logger.Warn("no state path configured, positions live in memory only")
		db = storage.NewMemDB()
	}

	metrics := observability.Credit()
	sink := events.Fanout{metrics}
	var idx *indexer.Indexer
	if cfg.Indexer.Driver != "" {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		if idx, err = indexer.New(gdb, logger); err != nil {
			return err
		}
		sink = append(sink, idx)
	}

	mkt, err := market.New(market.Options{
		Config:  cfg.Market,
		Params:  params,
		DB:      db,
		Emitter: sink,
		Logger:  logger,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("init market: %w", err)
	}
	defer mkt.Close()

	secret := os.Getenv(cfg.Auth.HSSecretEnv)
	logger.Info("auth configured", "issuer", cfg.Auth.Issuer, logging.MaskField("hs_secret", secret))
	verifier, err := auth.NewVerifier(auth.Options{
		Secret:   []byte(secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   time.Duration(cfg.Auth.MaxSkewSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	srv, err := server.New(server.Config{
		Market:   mkt,
		Verifier: verifier,
		Indexer:  idx,
		Metrics:  metrics,
		Logger:   logger,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		ServeMetrics: cfg.MetricsAddress == "",
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	servers := []*http.Server{{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}
	for _, hs := range servers {
		hs := hs
		g.Go(func() error {
			logger.Info("listening", "listen", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, hs := range servers {
			errs = append(errs, hs.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if cfg.Keeper.Address != "" && cfg.Keeper.SyncIntervalSeconds > 0 {
		keeper := common.HexToAddress(cfg.Keeper.Address)
		interval := time.Duration(cfg.Keeper.SyncIntervalSeconds) * time.Second
		g.Go(func() error {
			syncVariableRate(ctx, mkt, keeper, interval, logger)
			return nil
		})
	}

	logger.Info("creditd started", "module", mkt.ModuleAddress().Hex(), "database", cfg.Indexer.Driver)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("creditd stopped")
	return nil
}

// syncVariableRate copies the pool's borrow rate into the engine until ctx
// is cancelled.
func syncVariableRate(ctx context.Context, mkt *market.Market, keeper common.Address, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := mkt.Execute(func(e *credit.Engine) error {
				_, err := e.SyncVariableRateFromPool(keeper)
				return err
			})
			if err != nil {
				logger.Warn("variable rate sync failed", "error", err)
			}
		}
	}
}
