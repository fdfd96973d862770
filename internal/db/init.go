package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/RezaEskandarii/stepfire/internal/constants"
	"github.com/RezaEskandarii/stepfire/internal/lock"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	baseDir = "migrations"
	schema  = "stepfire_schema"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens a Postgres handle without touching the network.
func Open(postgresURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Init creates the schema and applies every migration script in name order.
// It ensures that only one instance runs the migration logic at a time by holding the migration
// advisory lock for the whole run. Scripts are idempotent, so re-running them is harmless.
func Init(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager, log zerolog.Logger) (err error) {
	if err = db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	migrationLock := constants.MigrationLock
	if err = distributedLock.Acquire(ctx, migrationLock); err != nil {
		return err
	}
	defer func() {
		if releaseErr := distributedLock.Release(context.WithoutCancel(ctx), migrationLock); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	if _, err = db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		log.Debug().Str("script", script.name).Msg("applying migration")
		if _, err = db.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("migration %s: %w", script.name, err)
		}
	}

	log.Info().Int("scripts", len(scripts)).Msg("database migrated")
	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, baseDir)
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(baseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}
