// Command ringkv-node is the composition root: it wires the ring,
// store, peer client, gossip registry, coordinator, membership
// watcher, and HTTP server into one running node, grounded on the
// teacher's storage-node main.go startup/shutdown sequence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/distnode/ringkv/internal/config"
	"github.com/distnode/ringkv/internal/coordinator"
	"github.com/distnode/ringkv/internal/handler"
	"github.com/distnode/ringkv/internal/health"
	"github.com/distnode/ringkv/internal/metrics"
	"github.com/distnode/ringkv/internal/peerclient"
	"github.com/distnode/ringkv/internal/registry"
	"github.com/distnode/ringkv/internal/ring"
	"github.com/distnode/ringkv/internal/server"
	"github.com/distnode/ringkv/internal/store"
	"github.com/distnode/ringkv/internal/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logger, err := initLogger("info", "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = os.Getenv("RINGKV_CONFIG_PATH")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger, err = initLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		logger.Fatal("failed to rebuild logger from config", zap.Error(err))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config default applied", zap.String("warning", w))
	}

	self := ring.NewNode(cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting ringkv node",
		zap.String("node_id", self.NodeID),
		zap.Int("replication_factor", cfg.Replication.Factor))

	r := ring.New()
	if err := r.Add(self); err != nil {
		logger.Fatal("failed to add self to ring", zap.Error(err))
	}

	s := store.New(cfg.Replication.Factor, logger)
	m := metrics.New(self.NodeID)
	client := peerclient.New(cfg.PeerClient.Timeout, cfg.PeerClient.MaxIdleConns, logger)

	gossipRegistry, err := registry.NewGossipRegistry(registry.GossipConfig{
		BindAddr: cfg.Gossip.BindAddr,
		BindPort: cfg.Gossip.BindPort,
		NodeName: cfg.Gossip.NodeName,
		Seeds:    cfg.Gossip.Seeds,
	}, logger)
	if err != nil {
		logger.Fatal("failed to start gossip registry", zap.Error(err))
	}
	defer func() {
		if err := gossipRegistry.Shutdown(); err != nil {
			logger.Warn("error shutting down gossip registry", zap.Error(err))
		}
	}()

	coord := coordinator.New(self, cfg.Replication.Factor, r, s, client, m, logger)

	watcher := registry.New(gossipRegistry, coord, self, cfg.Membership.TickInterval, logger)
	watcher.Start()
	defer watcher.Stop()

	healthChecker := health.NewChecker(self, r)
	handlers := handler.NewHandlers(coord, validation.NewValidator(), logger)
	srv := server.NewServer(cfg, handlers, healthChecker, m, logger)
	srv.SetupRoutes()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("error during graceful shutdown", zap.Error(err))
	}
}

func initLogger(level, encoding string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = encoding

	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	return zapCfg.Build()
}
