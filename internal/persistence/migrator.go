package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator runs the SQL files under migrationsDir with golang-migrate.
// File naming: {version}_{name}.up.sql / .down.sql
type Migrator struct {
	dsn           string
	migrationsDir string
}

func NewMigrator(dsn, migrationsDir string) *Migrator {
	return &Migrator{dsn: dsn, migrationsDir: migrationsDir}
}

// Up applies all pending up-migrations in order.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down rolls back the last applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, func(mg *migrate.Migrate) error { return mg.Steps(-1) })
}

// Version returns the current schema version, 0 when nothing was applied.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	var version uint
	var dirty bool
	err := m.run(ctx, func(mg *migrate.Migrate) error {
		v, d, err := mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sourceURL, err := m.sourceURL()
	if err != nil {
		return err
	}

	mg, err := migrate.New(sourceURL, m.dsn)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := mg.Close()
		if srcErr != nil {
			log.Printf("WARN: migration source close: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("WARN: migration database close: %v", dbErr)
		}
	}()

	if err := fn(mg); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("INFO: no migrations to apply")
			return nil
		}
		return err
	}
	return nil
}

func (m *Migrator) sourceURL() (string, error) {
	dir, err := filepath.Abs(m.migrationsDir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat migrations dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return fmt.Sprintf("file://%s", filepath.ToSlash(dir)), nil
}
