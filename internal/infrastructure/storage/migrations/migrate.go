// Package migrations applies the embedded PostgreSQL schema with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"boigordo/pkg/logger"
)

//go:embed sql/*.sql
var files embed.FS

// Migrator runs schema migrations over a pgx pool.
type Migrator struct {
	m  *migrate.Migrate
	db *sql.DB
}

// New opens a migrator on pool. Close releases the sql.DB adapter only.
func New(pool *pgxpool.Pool) (*Migrator, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m, db: db}, nil
}

// Up applies every pending migration.
func (x *Migrator) Up(ctx context.Context) error {
	err := x.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info(ctx, "schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return x.logVersion(ctx)
}

// Down rolls back one migration.
func (x *Migrator) Down(ctx context.Context) error {
	if err := x.m.Steps(-1); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return x.logVersion(ctx)
}

// Version returns the applied version and whether it is dirty.
func (x *Migrator) Version() (uint, bool, error) {
	v, dirty, err := x.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (x *Migrator) logVersion(ctx context.Context) error {
	v, dirty, err := x.Version()
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	logger.Info(ctx, "schema migrated", "version", v, "dirty", dirty)
	return nil
}

// Close releases the source and the sql.DB adapter. The pool stays open.
func (x *Migrator) Close() error {
	srcErr, dbErr := x.m.Close()
	return errors.Join(srcErr, dbErr)
}
