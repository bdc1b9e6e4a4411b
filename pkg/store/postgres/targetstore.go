package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"github.com/owlfacerec/owlface/pkg/models"
)

var _ models.TargetRepository = &TargetStoreDAO{}

// TargetStoreDAO persists Targets in the targets table.
type TargetStoreDAO struct {
	db *bun.DB
}

func NewTargetStoreDAO(db *bun.DB) *TargetStoreDAO {
	return &TargetStoreDAO{db: db}
}

// Put inserts target as a new row. Once Put returns nil the row is committed.
func (dao *TargetStoreDAO) Put(ctx context.Context, target *models.Target) error {
	row := &TargetSchema{
		TargetBase: TargetBase{
			UUID:   target.UUID,
			Origin: target.Origin,
		},
		Embedding: pgvector.NewVector(target.Embedding),
	}

	_, err := dao.db.NewInsert().
		Model(row).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return models.NewDurabilityError("failed to insert target", err)
	}

	log.Debugf("persisted target %s as row %d", target.UUID, row.ID)

	return nil
}

// GetAll returns every Target in insertion order.
func (dao *TargetStoreDAO) GetAll(ctx context.Context) ([]models.Target, error) {
	var rows []TargetSchema
	err := dao.db.NewSelect().
		Model(&rows).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.NewDurabilityError("failed to read targets", err)
	}

	targets := make([]models.Target, len(rows))
	for i := range rows {
		targets[i] = models.Target{
			UUID:      rows[i].UUID,
			Origin:    rows[i].Origin,
			Embedding: rows[i].Embedding.Slice(),
		}
	}

	return targets, nil
}

func (dao *TargetStoreDAO) Close() error {
	if dao.db != nil {
		return dao.db.Close()
	}
	return nil
}
