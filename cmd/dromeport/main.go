// Dromeport is a single-process server that downloads music playlists into
// local libraries, streams job progress to clients and keeps persisted
// playlists in sync on recurring schedules.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sensor0x0/Dromeport/internal/api"
	"github.com/sensor0x0/Dromeport/internal/config"
	"github.com/sensor0x0/Dromeport/internal/database"
	"github.com/sensor0x0/Dromeport/internal/download"
	"github.com/sensor0x0/Dromeport/internal/history"
	"github.com/sensor0x0/Dromeport/internal/logger"
	"github.com/sensor0x0/Dromeport/internal/playlistsync"
	"github.com/sensor0x0/Dromeport/internal/tools"
	"github.com/sensor0x0/Dromeport/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dromeport: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
	})
	defer log.Close()

	log.Info().Str("addr", cfg.Server.Address()).Msg("Starting Dromeport")

	db, err := database.New(cfg.Data.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run()
	log.SetBroadcastHub(hub)

	historySvc := history.NewService(db, log.Logger)
	toolsSvc := tools.NewService(cfg.Tools.YtdlpPath, log.Logger)
	registry := download.NewRegistry(log.Logger)

	store, err := playlistsync.NewStore(cfg.Data.SyncStorePath(), log.Logger)
	if err != nil {
		return fmt.Errorf("load sync store: %w", err)
	}
	runner := playlistsync.NewRunner(store, toolsSvc.Path(), historySvc, log.Logger)
	runner.SetBroadcaster(hub)
	scheduler, err := playlistsync.NewScheduler(runner.RunScheduled, log.Logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	syncSvc := playlistsync.NewService(store, scheduler, runner, log.Logger)

	scheduler.Start()
	syncSvc.Reconcile()

	server := api.NewServer(cfg, log, api.Deps{
		Registry:    registry,
		SyncService: syncSvc,
		History:     historySvc,
		Tools:       toolsSvc,
		Hub:         hub,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
