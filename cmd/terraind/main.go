// Package main is the entry point for the terrain host daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/host"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/network"
	"github.com/Faultbox/midgard-terrain/internal/storage"
	"github.com/Faultbox/midgard-terrain/internal/texture"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.InitFromConfig(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Midgard Terrain Host ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg); err != nil {
		logger.Error("host error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("host stopped normally")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Data.SaveDir, logger.Named("storage"))
	if err != nil {
		return err
	}
	// A terrain saved earlier keeps the settings it was built with.
	terrainCfg, err := store.LoadConfig(cfg)
	if err != nil {
		return err
	}
	sess, err := store.OpenSession(terrainCfg)
	if err != nil {
		return err
	}
	if err := store.SaveConfig(terrainCfg); err != nil {
		return err
	}

	srv, err := network.Listen(cfg.Network.Listen, logger.Named("network"))
	if err != nil {
		return err
	}
	defer srv.Close()

	renders := texture.NewQueue(host.ProceduralRenderer(terrainCfg.Procedural.Params()), 4)
	h := host.New(host.Config{
		MapID:        cfg.Network.MapID,
		TickInterval: cfg.Network.TickInterval(),
	}, sess, store, srv, renders, logger.Named("host"))

	logger.Info("terrain loaded",
		zap.String("dir", store.Dir()),
		zap.Int("size_x", sess.Map.MapSize.X),
		zap.Int("size_y", sess.Map.MapSize.Y),
		zap.Int("layers", len(sess.Layers())+len(sess.MaterialLayers())))

	return h.Run(ctx)
}
