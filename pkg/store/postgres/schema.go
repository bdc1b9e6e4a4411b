package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunotel"

	"github.com/oiime/logrusbun"

	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/store/postgres/migrations"
)

var log = internal.GetLogger()

const (
	targetTableName = "targets"

	connectTimeout    = 30 * time.Second
	connectMaxRetries = 7
)

// TargetBase holds the columns of the targets table other than the embedding.
type TargetBase struct {
	// ID is the insertion order. Loading orders by it so the in-memory store keeps
	// registration order across restarts.
	ID        int64     `bun:",pk,autoincrement"                                           yaml:"id,omitempty"`
	UUID      uuid.UUID `bun:"type:uuid,notnull"                                           yaml:"uuid"`
	Origin    string    `bun:"type:varchar(64),notnull,default:'unknown'"                  yaml:"origin"`
	CreatedAt time.Time `bun:"type:timestamptz,nullzero,notnull,default:current_timestamp" yaml:"created_at,omitempty"`
}

// TargetSchemaTemplate is used only to create the targets table. The embedding column is
// added by CreateSchema so its width can follow the configured dimensions.
type TargetSchemaTemplate struct {
	bun.BaseModel `bun:"table:targets,alias:t"`
	TargetBase
}

// TargetSchema is a full targets row.
type TargetSchema struct {
	bun.BaseModel `bun:"table:targets,alias:t" yaml:"-"`
	TargetBase    `                             yaml:",inline"`

	Embedding pgvector.Vector `bun:"type:vector,notnull" yaml:"-"`
}

// enablePgVectorExtension creates the pgvector extension if it does not exist and updates it if it is out of date.
func enablePgVectorExtension(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("error creating pgvector extension: %w", err)
	}

	// this is a no-op if the extension is already up to date
	_, err = db.ExecContext(ctx, "ALTER EXTENSION vector UPDATE")
	if err != nil {
		return fmt.Errorf("error updating pgvector extension: %w", err)
	}

	return nil
}

// CreateSchema creates the targets table if it does not exist, applies migrations and checks
// that the stored embedding width matches the configured dimensions.
func CreateSchema(
	ctx context.Context,
	appState *models.AppState,
	db *bun.DB,
) error {
	dimensions := appState.Config.Embedding.Dimensions

	_, err := db.NewCreateTable().
		Model((*TargetSchemaTemplate)(nil)).
		// create the embedding column using the configured dimensions
		ColumnExpr("embedding vector(?) NOT NULL", dimensions).
		IfNotExists().
		Exec(ctx)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("error creating targets table: %w", err)
	}

	if err := migrations.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := checkEmbeddingDims(ctx, db, dimensions); err != nil {
		return fmt.Errorf("error checking target embedding dimensions: %w", err)
	}

	return nil
}

// checkEmbeddingDims refuses to start against a table built for another model. Unlike a
// column migration this never discards enrolled faces.
func checkEmbeddingDims(ctx context.Context, db *bun.DB, dimensions int) error {
	width, err := getEmbeddingColumnWidth(ctx, targetTableName, db)
	if err != nil {
		return err
	}
	if width != dimensions {
		return fmt.Errorf(
			"%s.embedding holds %d dimensions but embedding.dimensions is %d",
			targetTableName,
			width,
			dimensions,
		)
	}
	return nil
}

// getEmbeddingColumnWidth returns the width of the embedding column in the provided table.
func getEmbeddingColumnWidth(ctx context.Context, tableName string, db *bun.DB) (int, error) {
	var width int
	err := db.NewSelect().
		Table("pg_attribute").
		ColumnExpr("atttypmod"). // vector width is stored in atttypmod
		Where("attrelid = ?::regclass", tableName).
		Where("attname = 'embedding'").
		Scan(ctx, &width)
	if err != nil {
		return 0, fmt.Errorf("error getting embedding column width: %w", err)
	}
	return width, nil
}

// NewPostgresConn creates a new bun.DB connection to the configured postgres database.
// The initial ping is retried with backoff so the service can start alongside its database.
func NewPostgresConn(appState *models.AppState) (*bun.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout*connectMaxRetries)
	defer cancel()

	cfg := appState.Config

	maxOpenConns := cfg.Store.Postgres.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 4 * runtime.GOMAXPROCS(0)
	}

	sqldb := sql.OpenDB(
		pgdriver.NewConnector(
			pgdriver.WithDSN(cfg.Store.Postgres.ConnString()),
			pgdriver.WithTimeout(connectTimeout),
		),
	)
	sqldb.SetMaxOpenConns(maxOpenConns)
	sqldb.SetMaxIdleConns(maxOpenConns)

	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Tracing.Enabled {
		db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.Store.Postgres.Database)))
	}
	if log.IsLevelEnabled(logrus.DebugLevel) {
		pgDebugLogging(db)
	}

	pingRetryPolicy := retrypolicy.Builder[any]().
		WithBackoff(500*time.Millisecond, 10*time.Second).
		WithMaxRetries(connectMaxRetries).
		Build()

	_, err := failsafe.Get(func() (any, error) {
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			log.Warnf("postgres not reachable yet: %v", pingErr)
		}
		return nil, pingErr
	}, pingRetryPolicy)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	if err := enablePgVectorExtension(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func pgDebugLogging(db *bun.DB) {
	db.AddQueryHook(logrusbun.NewQueryHook(logrusbun.QueryHookOptions{
		LogSlow:         time.Second,
		Logger:          log,
		QueryLevel:      logrus.DebugLevel,
		ErrorLevel:      logrus.ErrorLevel,
		SlowLevel:       logrus.WarnLevel,
		MessageTemplate: "{{.Operation}}[{{.Duration}}]: {{.Query}}",
		ErrorTemplate:   "{{.Operation}}[{{.Duration}}]: {{.Query}}: {{.Error}}",
	}))
}
