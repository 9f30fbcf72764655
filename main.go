package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"futures-bridge/internal/api"
	"futures-bridge/internal/broker"
	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/gateway"
	"futures-bridge/internal/instrument"
	"futures-bridge/internal/market"
	"futures-bridge/internal/monitor"
	"futures-bridge/internal/persistence"
	"futures-bridge/internal/reconciliation"
	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/config"
	"futures-bridge/pkg/db"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

const version = "0.3.0"

var log = logging.For("main")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	settings, err := config.LoadSettings(cfg.GatewaySettingsPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && cfg.DryRun:
		log.WithField("path", cfg.GatewaySettingsPath).Warn("no gateway settings, using defaults for dry run")
		settings = &config.Settings{}
	default:
		log.WithError(err).Fatal("load gateway settings")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(reg)

	var (
		database *db.Database
		journal  *persistence.Journal
	)
	if cfg.EnableJournal {
		database, err = db.New(cfg.DBPath)
		if err != nil {
			log.WithError(err).Fatal("open journal")
		}
		if err := db.ApplyMigrations(database); err != nil {
			log.WithError(err).Fatal("migrate journal")
		}
		journal = persistence.NewJournal(bus, database, 50, 500*time.Millisecond)
		journal.Start(ctx)
	}

	brk := broker.New(settings.Commission)

	gw, err := gateway.NewGateway(gateway.FactoryConfig{
		DryRun:            cfg.DryRun,
		GatewayType:       cfg.GatewayType,
		BridgeURL:         cfg.BridgeURL,
		RateLimit:         cfg.BridgeRateLimit,
		PaperSymbols:      cfg.PaperInstruments,
		PaperBalance:      1_000_000,
		PaperFillDelay:    200 * time.Millisecond,
		PaperTickInterval: time.Second,
	})
	if err != nil {
		log.WithError(err).Fatal("create gateway")
	}

	cache := snapshot.NewCache()
	ticks := market.NewQueue(cfg.TickQueueSize, 100*time.Millisecond)
	eng := engine.New(engine.Config{
		Gateway:   gw,
		Broker:    brk,
		Bus:       bus,
		Contracts: instrument.NewTable(),
		Cache:     cache,
		Ticks:     ticks,
		Metrics:   metrics,
	})

	feed := market.NewFeed(eng, bus)
	feed.Start(ctx)
	mon := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{}, Metrics: metrics}
	mon.Start(ctx)

	session := gateway.NewSession(gw, eng, brk, cache, bus, gateway.Options{
		Settings:         settings.Gateway(cfg.GatewayType),
		WaitConnected:    cfg.WaitConnected,
		ConnectTimeout:   cfg.ConnectTimeout,
		SeedFromSnapshot: cfg.SeedFromSnap,
		SnapshotSettle:   cfg.SnapshotSettle,
	})
	session.Run(ctx)

	querier, _ := gw.(exchange.Querier)
	drift := reconciliation.NewService(cache, brk, eng, querier, metrics, cfg.PositionCheck)

	server := api.NewServer(api.Deps{
		Engine:   eng,
		Session:  session,
		Accounts: brk,
		Bus:      bus,
		DB:       database,
		Drift:    drift,
		Ticks:    feed,
		Gatherer: reg,
	}, api.SystemMeta{
		DryRun:      cfg.DryRun,
		GatewayType: cfg.GatewayType,
		Universe:    cfg.Universe,
		Version:     version,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.WithError(err).Error("http server stopped")
		}
	}()
	health := api.NewHealthServer(session, time.Second)
	go func() {
		if err := health.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			log.WithError(err).Error("grpc health server stopped")
		}
	}()

	if err := session.Connect(ctx); err != nil {
		log.WithError(err).Error("connect failed")
		shutdown(session, server, journal, database, ticks)
		os.Exit(1)
	}

	if len(cfg.Universe) > 0 {
		waitForContracts(ctx, eng, cfg.Universe, 10*time.Second)
		bus.Publish(events.EventUniverseChanged, events.UniverseChange{OrderBookIDs: cfg.Universe})
	}
	drift.Start(ctx)

	log.WithFields(logrus.Fields{
		"gateway": cfg.GatewayType,
		"dry_run": cfg.DryRun,
		"version": version,
	}).Info("futures bridge running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	cancel()
	shutdown(session, server, journal, database, ticks)
}

// waitForContracts gives the gateway time to push definitions for the initial
// universe; subscribing to an unknown contract is a no-op.
func waitForContracts(ctx context.Context, eng *engine.Engine, ids []string, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		known := eng.Contracts()
		missing := 0
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				missing++
			}
		}
		if missing == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			log.WithField("missing", missing).Warn("universe contracts still unknown, subscribing anyway")
			return
		case <-poll.C:
		}
	}
}

func shutdown(session *gateway.Session, server *api.Server, journal *persistence.Journal, database *db.Database, ticks *market.Queue) {
	if err := session.Exit(); err != nil {
		log.WithError(err).Warn("session exit")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	ticks.Close()
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.WithError(err).Warn("journal close")
		}
	}
	if err := database.Close(); err != nil {
		log.WithError(err).Warn("db close")
	}
}
