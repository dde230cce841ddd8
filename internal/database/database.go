package database

import (
	"database/sql"
	"embed"
	"fmt"

	"lol-dashboard/internal/config"
	"lol-dashboard/internal/constants"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// New opens the client-local cache database. The whole file is disposable:
// losing it only costs refetches, never data.
func New(cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	logger.Info().Str("path", cfg.DBPath).Msg("opening cache database")

	db, err := Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(constants.DBMaxOpenConns)
	db.SetMaxIdleConns(constants.DBMaxIdleConns)
	db.SetConnMaxLifetime(constants.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(constants.DBMaxIdleTime)

	return db, nil
}

// Open connects, tunes and migrates a sqlite database at path. Split out of
// New so tests can open a throwaway database without a full Config.
func Open(path string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := optimizeSQLite(db, logger); err != nil {
		return nil, fmt.Errorf("failed to optimize sqlite: %w", err)
	}
	if err := runMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	logger.Info().Msg("migrations completed successfully")
	return nil
}

func optimizeSQLite(sqlDB *sql.DB, logger zerolog.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"temp_store", "MEMORY"},
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := sqlDB.Exec(query); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		logger.Debug().
			Str("pragma", pragma.name).
			Str("value", pragma.value).
			Msg("sqlite pragma set")
	}

	return nil
}
