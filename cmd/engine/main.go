package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/keyprint-engine/internal/api"
	"github.com/rawblock/keyprint-engine/internal/calibration"
	"github.com/rawblock/keyprint-engine/internal/classifier"
	"github.com/rawblock/keyprint-engine/internal/config"
	"github.com/rawblock/keyprint-engine/internal/db"
	"github.com/rawblock/keyprint-engine/internal/evidence"
	"github.com/rawblock/keyprint-engine/internal/training"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Msg("starting keystroke profiling engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("store unavailable")
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	manager := classifier.NewManager(cfg.Model.ArtifactPath)
	if err := manager.LoadFromDisk(); err != nil {
		if errors.Is(err, classifier.ErrModelNotReady) {
			log.Info().Msg("no model artifact on disk, engine starts untrained")
		} else {
			log.Warn().Err(err).Msg("could not restore model artifact")
		}
	}

	calibrator := calibration.New(cfg.Model.Temperature)
	trainer := training.NewOrchestrator(store, manager)

	sessions := evidence.NewSessionCache(cfg.Evidence.SessionTTL)
	go sessions.Run(ctx)

	hub := api.NewHub()
	go hub.Run()

	r := api.SetupRouter(cfg, store, manager, calibrator, sessions, trainer, hub)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("engine listening")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// openStore selects the persistence backend. DATABASE_URL forces postgres;
// otherwise the embedded SQLite file is used.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return db.Connect(ctx, cfg.PostgresURL)
	case "sqlite":
		return db.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
