// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/sigmaguard/internal/config"
	"github.com/aristath/sigmaguard/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	// 1. ledger.db - one row per ticker per day, never deleted
	ledgerDB, err := openDatabase(cfg.LedgerPath(), database.ProfileLedger, database.NameLedger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 2. cache.db - provider responses, safe to lose
	cacheDB, err := openDatabase(cfg.CachePath(), database.ProfileCache, database.NameCache)
	if err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	log.Info().
		Str("ledger", ledgerDB.Path()).
		Str("cache", cacheDB.Path()).
		Msg("Databases initialized")

	return container, nil
}

func openDatabase(path string, profile database.DatabaseProfile, name string) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply %s schema: %w", name, err)
	}
	return db, nil
}
