package main

import (
	"context"
	"fmt"
	"os"

	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/db"
	"github.com/blagoySimandov/careerpilot/internal/logger"
	"github.com/blagoySimandov/careerpilot/migrations"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun/migrate"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	bunDB := db.NewBunPostgresClient(cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	defer bunDB.Close()

	ctx := context.Background()
	migrator := migrate.NewMigrator(bunDB, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize migrator")
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		if err := migrations.Up(ctx, bunDB); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}

	case "down":
		group, err := migrator.Rollback(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		if group.IsZero() {
			fmt.Println("No migrations to rollback")
			return
		}
		fmt.Printf("Rolled back %s\n", group)

	case "status":
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get migration status")
		}
		fmt.Printf("Migrations:\n")
		for _, m := range ms {
			status := "pending"
			if m.IsApplied() {
				status = "applied"
			}
			fmt.Printf("  %s_%s: %s\n", m.Name, m.Comment, status)
		}

	default:
		fmt.Println("Usage: migrate [up|down|status]")
		fmt.Println("  up     - Run all pending migrations")
		fmt.Println("  down   - Rollback the last migration group")
		fmt.Println("  status - Show migration status")
		os.Exit(1)
	}
}
