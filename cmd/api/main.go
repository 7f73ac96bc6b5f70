package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/api"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/config"
	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/domain"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/journal"
	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/log"
	"github.com/rebasefi/stbt-ledger/internal/metrics"
	"github.com/rebasefi/stbt-ledger/internal/relay"
	"github.com/rebasefi/stbt-ledger/internal/store"
	"github.com/rebasefi/stbt-ledger/internal/ws"
	"github.com/rebasefi/stbt-ledger/pkg/kv"
	_ "github.com/rebasefi/stbt-ledger/pkg/kv/memory"
	kvredis "github.com/rebasefi/stbt-ledger/pkg/kv/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("Server exited", "error", err)
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, metricsHandler, err := metrics.Setup("stbt-ledger")
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	kvStore, err := kv.NewStoreFromConfig(kv.Config{
		Backend:          kv.Backend(cfg.Cache.Backend),
		RedisURL:         cfg.Cache.RedisURL,
		FallbackToMemory: cfg.Cache.FallbackToMemory,
		Logger:           logger.Infow,
	})
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}
	defer kvStore.Close()
	snapshots := store.New(kvStore, logger)

	checks := []api.Check{{Name: "kv", Probe: snapshots.Ping}}

	var j journal.Journal = journal.NewMemory()
	if cfg.Database.PostgresDSN != "" {
		pg, err := journal.Connect(ctx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return err
		}
		j = pg
		checks = append(checks, api.Check{Name: "postgres", Probe: pg.Ping})
	} else {
		logger.Warn("STBT_POSTGRES_DSN not set, events are journaled in memory only")
	}
	defer j.Close()

	writer := journal.NewWriter(j, 1024, logger)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(ctx)
	}()
	// the writer drains into j, so it has to stop before j closes
	defer func() {
		cancel()
		<-writerDone
	}()

	hub := ws.NewHub(cfg.Security.CORSAllowedOrigins, logger, m)
	go hub.Run(ctx)

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	domains, err := buildDomains(cfg, logger, m, transport, writer, hub)
	if err != nil {
		return err
	}

	snaps := make([]store.Snapshotter, 0, len(domains))
	for _, d := range domains {
		restored, err := snapshots.Load(ctx, d)
		if err != nil {
			return fmt.Errorf("restore %s: %w", d.Name, err)
		}
		if restored {
			logger.Infow("Restored domain state", "domain", d.Name)
		}
		snaps = append(snaps, d)
	}
	go snapshots.Run(ctx, cfg.Ledger.SnapshotInterval, snaps...)

	for _, d := range domains {
		var opts []relay.WorkerOption
		opts = append(opts, relay.WithWorkerLogger(logger))
		if cfg.Relay.Dedup {
			opts = append(opts, relay.WithDedup(kvStore, cfg.Relay.DedupTTL))
		}
		name := d.Name
		opts = append(opts, relay.WithReceiptHook(func(r crosschain.Receipt) {
			if err := j.RecordReceipt(ctx, name, r); err != nil {
				logger.Errorw("Failed to record receipt", "domain", name, "error", err)
			}
		}))
		worker := relay.NewWorker(transport, d.Messager, opts...)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Errorw("Relay worker failed", "domain", name, "error", err)
			}
		}()
	}

	handler := api.NewHandler(api.Options{
		Domains: domains,
		Journal: j,
		Hub:     hub,
		Checks:  checks,
		Metrics: m,
		Logger:  logger,
		Peer:    config.Address(cfg.Bridge.Messager),
	})
	mw := api.NewMiddleware(logger, m)
	router := handler.Routes(mw, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM, metricsHandler)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("Starting HTTP server", "addr", cfg.HTTPAddr, "domains", cfg.Bridge.Domains)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
	}

	cancel()
	for _, s := range snaps {
		if err := snapshots.Save(context.Background(), s); err != nil {
			logger.Errorw("Final snapshot failed", "key", s.SnapshotKey(), "error", err)
		}
	}
	return nil
}

func newTransport(cfg *config.Config, logger *zap.SugaredLogger) (relay.Transport, error) {
	if cfg.Relay.Transport != "redis" {
		return relay.NewMemoryTransport(relay.WithMemoryLogger(logger)), nil
	}
	opts, err := kvredis.ParseOptions(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("relay redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return relay.NewRedisTransport(client, cfg.Relay.Consumer, relay.WithRedisLogger(logger)), nil
}

func buildDomains(cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics, pub crosschain.Publisher, writer *journal.Writer, hub *ws.Hub) ([]*domain.Domain, error) {
	ratio, err := cfg.Ledger.MaxRatio()
	if err != nil {
		return nil, err
	}
	maxRatio, err := calc.RatioFromDecimal(ratio)
	if err != nil {
		return nil, fmt.Errorf("STBT_MAX_DISTRIBUTE_RATIO: %w", err)
	}

	var tl *domain.TimelockParams
	if cfg.Timelock.Enabled {
		delays, err := cfg.Timelock.MethodDelays()
		if err != nil {
			return nil, err
		}
		tl = &domain.TimelockParams{
			Admin:     config.Address(cfg.Timelock.Admin),
			Proposers: config.Addresses(cfg.Timelock.Proposers),
			Executors: config.Addresses(cfg.Timelock.Executors),
			Delays:    delays,
		}
	}

	params := func(name string) domain.Params {
		p := domain.Params{
			Owner:      config.Address(cfg.Ledger.Owner),
			Issuer:     config.Address(cfg.Ledger.Issuer),
			Controller: config.Address(cfg.Ledger.Controller),
			Moderator:  config.Address(cfg.Ledger.Moderator),
			Messager:   config.Address(cfg.Bridge.Messager),
			Metadata: ledger.Metadata{
				Name:     cfg.Ledger.Name,
				Symbol:   cfg.Ledger.Symbol,
				Decimals: ledger.DefaultMetadata.Decimals,
			},
			RedemptionPolicy:      ledger.RedemptionPolicy(cfg.Ledger.RedemptionPolicy),
			MinDistributeInterval: uint64(cfg.Ledger.MinDistributeInterval / time.Second),
			MaxDistributeRatio:    maxRatio,
			SendEnabled:           cfg.Bridge.SendEnabled,
			Timelock:              tl,
			Sink:                  events.Fanout{writer.Sink(name), hub.Sink(name)},
			Logger:                logger.With("domain", name),
			Observer:              m,
			Publisher:             pub,
		}
		if cfg.Bridge.Fallback != "" {
			p.Fallback = config.Address(cfg.Bridge.Fallback)
		}
		return p
	}

	var mainDomain, side *domain.Domain
	if cfg.HostsDomain(domain.Main) {
		if mainDomain, err = domain.BuildMain(params(domain.Main)); err != nil {
			return nil, fmt.Errorf("build main domain: %w", err)
		}
	}
	if cfg.HostsDomain(domain.Side) {
		if side, err = domain.BuildSide(params(domain.Side)); err != nil {
			return nil, fmt.Errorf("build side domain: %w", err)
		}
	}

	var out []*domain.Domain
	switch {
	case mainDomain != nil && side != nil:
		if err := domain.Link(mainDomain, side); err != nil {
			return nil, fmt.Errorf("link domains: %w", err)
		}
		out = []*domain.Domain{mainDomain, side}
	case mainDomain != nil:
		out = []*domain.Domain{mainDomain}
	default:
		out = []*domain.Domain{side}
	}
	return out, nil
}
