package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gocombat/adapters/api"
	"gocombat/adapters/postgres"
	"gocombat/app"
	"gocombat/domain/combat"
	"gocombat/internal"
	"gocombat/internal/config"
	"gocombat/internal/errors"
	"gocombat/internal/migration"
	"gocombat/internal/ops"
	"gocombat/internal/testkit"
	"gocombat/ports"
)

// initDatabase connects to PostgreSQL, verifies the connection and applies
// the schema
func initDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := migration.NewRunner().Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewDefaultLogger()

	var models ports.ModelRepository
	var runs ports.RunRepository
	if cfg.Database.Enabled() {
		db, err := initDatabase(cfg)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer db.Close()

		models = postgres.NewModelRepository(db)
		runs = postgres.NewRunRepository(db)
		logger.Info("model store: postgres")
	} else {
		// Models fitted in this mode live only as long as the process.
		kit := testkit.NewKit()
		models = kit.Models
		runs = kit.Runs
		logger.Info("model store: in-memory (set DATABASE_URL to persist models)")
	}

	base := combat.DefaultConfig()
	if cfg.Harmonize.Tolerance > 0 {
		base.ConvergenceTolerance = cfg.Harmonize.Tolerance
	}
	if cfg.Harmonize.MaxIterations > 0 {
		base.MaxIterations = cfg.Harmonize.MaxIterations
	}
	if cfg.Harmonize.Mode != "" {
		base.Mode = combat.AdjustMode(cfg.Harmonize.Mode)
	}
	if cfg.Harmonize.MaxParallel > 0 {
		base.MaxParallelBatches = cfg.Harmonize.MaxParallel
	}
	if err := base.Validate(); err != nil {
		log.Fatalf("Invalid harmonization defaults: %v", err)
	}

	service := app.NewHarmonizationService(base, models, runs, logger)
	server := api.NewServer(service, cfg.Server.Port, cfg.Server.GinMode, logger)

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(cfg.Ops.Port, logger)
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("ops server failed: %v", err)
			}
		}()
		opsServer.SetReady(true)
	}

	go func() {
		logger.Info("starting harmonization API on port %s", cfg.Server.Port)
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if opsServer != nil {
		if err := opsServer.Shutdown(ctx); err != nil {
			logger.Warn("ops shutdown: %v", err)
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	logger.Info("server stopped")
}
