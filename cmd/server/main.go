package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/config"
	"numrelay-go/internal/failover"
	"numrelay-go/internal/logging"
	"numrelay-go/internal/membership"
	"numrelay-go/internal/notify"
	"numrelay-go/internal/probe"
	"numrelay-go/internal/provider"
	"numrelay-go/internal/retry"
	srv "numrelay-go/internal/server"
	"numrelay-go/internal/service"
	"numrelay-go/internal/store"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}

	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}
	logging.InstallStreaming()

	log.WithField("config", *configPath).Info("Starting numrelay")

	backend, err := store.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage backend")
	}
	backend = store.WithInstrumentation(backend, cfg.StorageBackend)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := backend.Initialize(initCtx); err != nil {
		cancelInit()
		log.WithError(err).Fatal("Failed to initialize storage backend")
	}
	cancelInit()

	// Shared pool from configuration, in priority order.
	var shared []*account.Account
	for _, sa := range cfg.SharedAccounts {
		shared = append(shared, account.New(sa.SID, sa.Token))
	}
	if len(shared) == 0 {
		log.Warn("No shared accounts configured; only private pools will serve")
	}
	registry := account.NewRegistry(account.NewPool("shared", shared...), cfg.BulkPoolLimit)

	policy := retry.Policy{
		MaxAttempts:    cfg.RetryMax,
		Interval:       time.Duration(cfg.RetryIntervalSec) * time.Second,
		MaxInterval:    time.Duration(cfg.RetryMaxIntervalSec) * time.Second,
		Multiplier:     2.0,
		RateLimitPause: time.Duration(cfg.RateLimitPauseSec) * time.Second,
	}

	ledger := membership.NewMemoryLedger()
	oracle := membership.NewTelegramOracle(cfg.TelegramAPIBase, cfg.BotToken, cfg.OracleRatePerSecond, cfg.ProbeTimeout())
	verifier := membership.NewVerifier(membership.VerifierOptions{
		Oracle:         oracle,
		Ledger:         ledger,
		RequiredGroups: cfg.RequiredGroups,
		Policy:         policy,
		AdminPrincipal: cfg.AdminPrincipal,
		TrustTTL:       cfg.TrustTTL(),
	})

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout())
	prober := probe.New(providerClient)

	var sink notify.Sink = notify.Discard{}
	if cfg.BotToken != "" {
		sink = notify.NewTelegramSink(cfg.TelegramAPIBase, cfg.BotToken,
			cfg.NotifyRatePerSecond, cfg.NotifyBurst, cfg.ProbeTimeout())
	}

	svc := service.New(service.Options{
		Verifier:       verifier,
		Registry:       registry,
		Executor:       failover.New(registry),
		Provider:       providerClient,
		Prober:         prober,
		Store:          backend,
		Sink:           sink,
		Ledger:         ledger,
		AdminPrincipal: cfg.AdminPrincipal,
		ProbeTimeout:   cfg.ProbeTimeout(),
	})

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Bootstrap(bootCtx); err != nil {
		cancelBoot()
		log.WithError(err).Fatal("Failed to restore principal state")
	}
	cancelBoot()

	// Config hot reload currently re-reads non-structural settings only;
	// pool and group changes still need a restart.
	watcher := config.NewWatcher(*configPath, cfg)
	watcher.OnReload(func(next *config.Config) {
		log.Info("Configuration reloaded")
		if err := logging.Setup(next); err != nil {
			log.WithError(err).Warn("Failed to apply reloaded logging settings")
		}
	})
	if err := watcher.Start(); err != nil {
		log.WithError(err).Warn("Config watcher unavailable")
	}

	server := srv.New(cfg, svc, backend)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown incomplete")
	}

	watcher.Stop()
	logging.Hub().Stop()
	if err := backend.Close(); err != nil {
		log.WithError(err).Warn("Storage backend close failed")
	}
	log.Info("Shutdown complete")
}
