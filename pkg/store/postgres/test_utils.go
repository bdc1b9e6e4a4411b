package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// CleanDB drops the targets table and the migration bookkeeping so the next CreateSchema
// starts from scratch.
func CleanDB(t *testing.T, db *bun.DB) {
	_, err := db.NewDropTable().
		Model((*TargetSchema)(nil)).
		Cascade().
		IfExists().
		Exec(context.Background())
	require.NoError(t, err)

	for _, table := range []string{"bun_migrations", "bun_migration_locks"} {
		_, err = db.NewDropTable().
			Table(table).
			IfExists().
			Exec(context.Background())
		require.NoError(t, err)
	}
}
