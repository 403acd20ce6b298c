// Package main provides the schema migration CLI.
// Usage: migrate up
//        migrate down
//        migrate version
package main

import (
	"context"
	"fmt"
	"os"

	"boigordo/internal/config"
	"boigordo/internal/infrastructure/storage/migrations"
	"boigordo/internal/infrastructure/storage/postgres"
	"boigordo/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up", "down", "version":
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment()})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MinConns = 1
	poolCfg.StatementTimeout = 0
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	m, err := migrations.New(pool.Unwrap())
	if err != nil {
		log.Fatalw("failed to open migrations", "error", err)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		}
	}
	if err != nil {
		log.Fatalw("migration failed", "command", os.Args[1], "error", err)
	}
}

func printUsage() {
	fmt.Println(`boigordo schema migrations

Usage:
  migrate <command>

Commands:
  up        Apply all pending migrations
  down      Roll back one migration
  version   Print the current schema version
  help      Show this help

Environment Variables:
  DATABASE_URL   Connection string (required)
  ENV_FILE       dotenv file to load first (default .env)`)
}
