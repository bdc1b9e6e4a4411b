// Package migrations applies the SQL changes made to the targets table after it was first
// created.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/owlfacerec/owlface/internal"
)

var log = internal.GetLogger()

//go:embed *.sql
var sqlMigrations embed.FS

// Migrate runs every pending migration under the migrator lock. A failed group is rolled
// back before the error is returned.
func Migrate(ctx context.Context, db *bun.DB) (err error) {
	migrations := migrate.NewMigrations()

	if err := migrations.Discover(sqlMigrations); err != nil {
		return fmt.Errorf("failed to discover migrations: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to init migrator: %w", err)
	}

	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock migrator: %w", err)
	}
	defer func() {
		if unlockErr := migrator.Unlock(ctx); unlockErr != nil && err == nil {
			err = fmt.Errorf("failed to unlock migrator: %w", unlockErr)
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		if _, rbErr := migrator.Rollback(ctx); rbErr != nil {
			return fmt.Errorf(
				"failed to apply migrations (%v) and rollback was unsuccessful: %w", err, rbErr,
			)
		}
		return fmt.Errorf("failed to apply migrations, rolled back successfully: %w", err)
	}

	if group.IsZero() {
		log.Info("there are no new migrations to run (database is up to date)")
		return nil
	}
	log.Infof("migrated to %s", group)

	return nil
}
