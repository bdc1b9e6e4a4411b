package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
	"gopkg.in/yaml.v3"

	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/search"
)

const (
	targetFixtureFile = "target_fixtures.yaml"
	fixtureBatchSize  = 500
)

// FixtureTarget is the YAML form of a targets row. Embeddings are written as plain float
// lists so fixture files stay readable and diffable.
type FixtureTarget struct {
	UUID      uuid.UUID `yaml:"uuid"`
	Origin    string    `yaml:"origin"`
	CreatedAt time.Time `yaml:"created_at"`
	Embedding []float32 `yaml:"embedding,flow"`
}

type FixtureModel struct {
	Model string          `yaml:"model"`
	Rows  []FixtureTarget `yaml:"rows"`
}

type Fixtures []FixtureModel

func generateTimeLastNDays(nDays int) time.Time {
	now := time.Now()
	start := now.Add(time.Duration(-nDays) * 24 * time.Hour)
	return gofakeit.DateRange(start, now)
}

// generateOrigin returns a camera-like source name.
func generateOrigin() string {
	name := strings.ToLower(gofakeit.Adjective() + "-" + gofakeit.Animal())
	origin := fmt.Sprintf("%s-cam-%d", name, gofakeit.Number(1, 32))
	if len(origin) > models.MaxOriginLength {
		origin = origin[:models.MaxOriginLength]
	}
	return origin
}

// generateEmbedding returns a random unit vector.
func generateEmbedding(dimensions int) []float32 {
	for {
		v := make([]float32, dimensions)
		for i := range v {
			v[i] = gofakeit.Float32Range(-1, 1)
		}
		if n, ok := search.Normalize(v); ok {
			return n
		}
	}
}

// GenerateFixtureTargets returns fixtureCount Targets. A tenth of the identities are
// enrolled twice, as happens when a person is registered from two cameras.
func GenerateFixtureTargets(fixtureCount, dimensions int) []FixtureTarget {
	rows := make([]FixtureTarget, 0, fixtureCount)
	for len(rows) < fixtureCount {
		row := FixtureTarget{
			UUID:      uuid.New(),
			Origin:    generateOrigin(),
			CreatedAt: generateTimeLastNDays(14),
			Embedding: generateEmbedding(dimensions),
		}
		rows = append(rows, row)

		if len(rows) < fixtureCount && gofakeit.Number(1, 10) == 1 {
			rows = append(rows, FixtureTarget{
				UUID:      row.UUID,
				Origin:    generateOrigin(),
				CreatedAt: row.CreatedAt.Add(time.Duration(gofakeit.Number(1, 3600)) * time.Second),
				Embedding: generateEmbedding(dimensions),
			})
		}
	}
	return rows
}

// GenerateFixtureData writes fixtureCount targets to outputDir/target_fixtures.yaml.
func GenerateFixtureData(fixtureCount, dimensions int, outputDir string) error {
	fakerGlobal := gofakeit.NewUnlocked(0)
	gofakeit.SetGlobalFaker(fakerGlobal)

	fixtures := Fixtures{
		{
			Model: "TargetSchema",
			Rows:  GenerateFixtureTargets(fixtureCount, dimensions),
		},
	}

	if outputDir == "" {
		outputDir = "./"
	} else if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("unable to create %s: %w", outputDir, err)
		}
	}

	data, err := yaml.Marshal(&fixtures)
	if err != nil {
		return fmt.Errorf("failed to marshal fixtures: %w", err)
	}

	path := filepath.Join(outputDir, targetFixtureFile)
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Infof("fixtures generated successfully in %s", path)

	return nil
}

// LoadFixtures recreates the targets table and fills it from every YAML file in fixturePath.
func LoadFixtures(
	ctx context.Context,
	appState *models.AppState,
	db *bun.DB,
	fixturePath string,
) error {
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))

	dropQuery := `DROP TABLE IF EXISTS targets CASCADE;
DROP TABLE IF EXISTS bun_migrations;
DROP TABLE IF EXISTS bun_migration_locks;`

	if _, err := db.ExecContext(ctx, dropQuery); err != nil {
		return fmt.Errorf("failed to drop targets table: %w", err)
	}

	if err := enablePgVectorExtension(ctx, db); err != nil {
		return fmt.Errorf("failed to enable pg_vector extension: %w", err)
	}

	if err := CreateSchema(ctx, appState, db); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	files, err := os.ReadDir(fixturePath)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch filepath.Ext(file.Name()) {
		case ".yaml", ".yml":
			if err := loadFixtureFile(ctx, db, filepath.Join(fixturePath, file.Name())); err != nil {
				return fmt.Errorf("failed to load fixture %s: %w", file.Name(), err)
			}
		}
	}

	return nil
}

func loadFixtureFile(ctx context.Context, db *bun.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fixtures Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return err
	}

	for _, fixture := range fixtures {
		if fixture.Model != "TargetSchema" {
			return fmt.Errorf("unknown fixture model %q", fixture.Model)
		}
		for start := 0; start < len(fixture.Rows); start += fixtureBatchSize {
			end := min(start+fixtureBatchSize, len(fixture.Rows))
			if err := insertFixtureRows(ctx, db, fixture.Rows[start:end]); err != nil {
				return err
			}
		}
	}

	return nil
}

func insertFixtureRows(ctx context.Context, db *bun.DB, fixtureRows []FixtureTarget) error {
	rows := make([]TargetSchema, len(fixtureRows))
	for i, f := range fixtureRows {
		origin := f.Origin
		if origin == "" {
			origin = models.DefaultOrigin
		}
		rows[i] = TargetSchema{
			TargetBase: TargetBase{
				UUID:      f.UUID,
				Origin:    origin,
				CreatedAt: f.CreatedAt,
			},
			Embedding: pgvector.NewVector(f.Embedding),
		}
	}

	_, err := db.NewInsert().Model(&rows).Exec(ctx)
	return err
}
