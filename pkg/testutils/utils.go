package testutils

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/search"
)

// PostgresDSNEnv names the database used by integration tests. Those tests are skipped when
// it is unset.
const PostgresDSNEnv = "OWLFACE_TEST_POSTGRES_DSN"

func GetDSN() string {
	return os.Getenv(PostgresDSNEnv)
}

// NewTestConfig loads config.yaml from the project root and points the postgres store at
// GetDSN.
func NewTestConfig() (*config.Config, error) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %v", err)
	}
	// load env vars from .env
	err = godotenv.Load(filepath.Join(projectRoot, ".env"))
	if err != nil {
		fmt.Println(".env file not found or unable to load")
	}
	configPath := filepath.Join(projectRoot, "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	cfg.Store.Postgres.DSN = GetDSN()

	return cfg, nil
}

// FindProjectRoot returns the absolute path to the project root directory.
func FindProjectRoot() (string, error) {
	_, currentFilePath, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("could not get current file path")
	}

	dir := filepath.Dir(currentFilePath)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		// If we've reached the top-level directory, the project root is not found.
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("project root not found")
		}

		dir = filepath.Dir(dir)
	}
}

// RandomEmbedding returns a unit vector drawn from r.
func RandomEmbedding(r *rand.Rand, dimensions int) []float32 {
	for {
		v := make([]float32, dimensions)
		for i := range v {
			v[i] = float32(r.NormFloat64())
		}
		if n, ok := search.Normalize(v); ok {
			return n
		}
	}
}

// RandomTarget returns a Target with a fresh UUID and a random unit embedding.
func RandomTarget(r *rand.Rand, dimensions int) models.Target {
	return models.Target{
		UUID:      uuid.New(),
		Origin:    fmt.Sprintf("camera-%d", r.Intn(16)),
		Embedding: RandomEmbedding(r, dimensions),
	}
}
