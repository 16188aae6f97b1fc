package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/drivewatch/internal/config"
	"github.com/HerbHall/drivewatch/internal/drive"
	"github.com/HerbHall/drivewatch/internal/event"
	"github.com/HerbHall/drivewatch/internal/history"
	"github.com/HerbHall/drivewatch/internal/mqtt"
	"github.com/HerbHall/drivewatch/internal/poller"
	"github.com/HerbHall/drivewatch/internal/server"
	"github.com/HerbHall/drivewatch/internal/version"
	"github.com/HerbHall/drivewatch/internal/ws"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration before the logger so log level/format apply.
	viperCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("DriveWatch starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults and environment")
	}

	cfg, err := config.Parse(viperCfg)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot history store. An empty path disables persistence.
	var store *history.Store
	if cfg.Database.Path != "" {
		store, err = history.New(ctx, cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open history database", zap.Error(err))
		}
		defer store.Close()
		logger.Info("history store initialized", zap.String("path", cfg.Database.Path))
	}

	bus := event.NewBus(logger.Named("event"))

	// Appliance client, session manager, and polling pipeline.
	creds := cfg.Appliance.Credentials()
	client := drive.NewClient(creds, cfg.Appliance.Timeout)
	sessions := drive.NewSessionManager(client, creds, logger.Named("session"))
	agg := poller.NewAggregator(sessions, client, drive.DefaultResources(), logger.Named("poller"))
	coord := poller.NewCoordinator(agg, sessions, bus, cfg.Poll.Interval, logger.Named("poller"))

	// Persist every published snapshot; prune old rows periodically.
	if store != nil {
		coord.Subscribe(func(snap poller.Snapshot) {
			insertCtx, insertCancel := context.WithTimeout(ctx, 5*time.Second)
			defer insertCancel()
			if err := store.Insert(insertCtx, snap); err != nil {
				logger.Error("failed to persist snapshot",
					zap.String("cycle_id", snap.CycleID),
					zap.Error(err),
				)
			}
		})
		go pruneLoop(ctx, store, cfg.Database.Retention, logger.Named("history"))
	}

	// MQTT publisher (no-op unless a broker is configured).
	pub := mqtt.New(mqttConfig(cfg), bus, logger.Named("mqtt"))
	if err := pub.Start(ctx); err != nil {
		logger.Fatal("failed to start mqtt publisher", zap.Error(err))
	}

	wsHandler := ws.NewHandler(coord, bus, logger.Named("ws"))

	srv := server.New(cfg.Server.Addr(), coord, store, logger.Named("server"), wsHandler)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr()))

	coord.Start(ctx)
	logger.Info("DriveWatch ready",
		zap.String("appliance", cfg.Appliance.Host),
		zap.Duration("interval", cfg.Poll.Interval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	coord.Stop()
	if err := pub.Stop(shutdownCtx); err != nil {
		logger.Error("mqtt shutdown error", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("DriveWatch stopped")
}

// mqttConfig maps the daemon configuration onto the publisher configuration.
func mqttConfig(cfg *config.Config) mqtt.Config {
	m := mqtt.DefaultConfig()
	m.BrokerURL = cfg.MQTT.BrokerURL
	m.Username = cfg.MQTT.Username
	m.Password = cfg.MQTT.Password
	if cfg.MQTT.ClientID != "" {
		m.ClientID = cfg.MQTT.ClientID
	}
	if cfg.MQTT.TopicPrefix != "" {
		m.TopicPrefix = cfg.MQTT.TopicPrefix
	}
	m.QoS = byte(cfg.MQTT.QoS)
	m.Retain = cfg.MQTT.Retain
	if cfg.MQTT.Timeout > 0 {
		m.Timeout = cfg.MQTT.Timeout
	}
	m.HADiscovery = cfg.MQTT.HADiscovery
	if cfg.MQTT.HADiscoveryPrefix != "" {
		m.HADiscoveryPrefix = cfg.MQTT.HADiscoveryPrefix
	}
	m.ApplianceHost = cfg.Appliance.Host
	return m
}

// pruneLoop deletes history rows past retention once an hour.
func pruneLoop(ctx context.Context, store *history.Store, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, retention)
			if err != nil {
				logger.Error("history prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("history pruned", zap.Int64("rows", n))
			}
		}
	}
}
