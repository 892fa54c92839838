package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/RubachokBoss/exam-grading/import-service/internal/app"
	"github.com/RubachokBoss/exam-grading/import-service/internal/config"
	"github.com/RubachokBoss/exam-grading/import-service/internal/database"
	"github.com/RubachokBoss/exam-grading/import-service/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithConfig(logger.Options{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		NoColor:    cfg.Logging.NoColor,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
			force := migrateCmd.Int("force", -1, "force the schema version and clear the dirty flag")
			direction := "up"
			args := os.Args[2:]
			if len(args) > 0 && (args[0] == "up" || args[0] == "down" || args[0] == "version") {
				direction = args[0]
				args = args[1:]
			}
			migrateCmd.Parse(args)
			runMigrations(cfg, log, direction, *force)
			return
		case "worker":
			cfg.Import.InstanceID = cfg.Import.Instance("worker")
			run(cfg, log, false)
			return
		}
	}

	cfg.Import.InstanceID = cfg.Import.Instance("server")
	run(cfg, log, true)
}

func run(cfg *config.Config, log zerolog.Logger, serveHTTP bool) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	log.Info().Str("instance", cfg.Import.InstanceID).Msg("Database connection established")

	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background processing")
	}

	if serveHTTP {
		go func() {
			if err := application.Run(); err != nil {
				log.Error().Err(err).Msg("HTTP server failed")
				stop()
			}
		}()
		log.Info().Msgf("Import Service started on %s", cfg.Server.Address)
	} else {
		log.Info().Msg("Import Service started in worker mode")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down Import Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}

	log.Info().Msg("Import Service stopped")
}

func runMigrations(cfg *config.Config, log zerolog.Logger, direction string, force int) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	if force >= 0 {
		if err := migrator.Force(force); err != nil {
			log.Fatal().Err(err).Msg("Failed to force migration version")
		}
		log.Info().Int("version", force).Msg("Migration version forced")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
	}
}
