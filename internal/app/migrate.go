package app

import (
	"errors"

	"alphafeed/internal/storage"
)

// Migrate applies (or with down=true rolls back) the embedded schema.
func (a *App) Migrate(down bool) error {
	dsn := a.Config.Database.DSN
	if dsn == "" {
		return errors.New("database not configured; cannot migrate")
	}

	if down {
		a.Logger.Warn().Msg("rolling back database schema")
		return storage.RollbackMigrations(dsn)
	}

	if err := storage.RunMigrations(dsn); err != nil {
		return err
	}
	a.Logger.Info().Msg("database schema up to date")
	return nil
}
