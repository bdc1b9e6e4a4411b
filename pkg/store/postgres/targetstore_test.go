package postgres

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/testutils"
)

const testDimensions = 8

var (
	testDB   *bun.DB
	testCtx  context.Context
	appState *models.AppState
)

func TestMain(m *testing.M) {
	if testutils.GetDSN() == "" {
		// The fixture generator tests need no database.
		os.Exit(m.Run())
	}
	setup()
	exitCode := m.Run()
	tearDown()

	os.Exit(exitCode)
}

func setup() {
	internal.SetLogLevel(logrus.DebugLevel)

	cfg, err := testutils.NewTestConfig()
	if err != nil {
		panic(err)
	}
	cfg.Embedding.Dimensions = testDimensions
	appState = &models.AppState{Config: cfg}

	testDB, err = NewPostgresConn(appState)
	if err != nil {
		panic(err)
	}
	testCtx = context.Background()
}

func tearDown() {
	if err := testDB.Close(); err != nil {
		panic(err)
	}
	internal.SetLogLevel(logrus.InfoLevel)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skipf("%s not set", testutils.PostgresDSNEnv)
	}
}

func freshSchema(t *testing.T) {
	t.Helper()
	CleanDB(t, testDB)
	require.NoError(t, CreateSchema(testCtx, appState, testDB))
}

func TestCreateSchema(t *testing.T) {
	requireDB(t)
	freshSchema(t)

	width, err := getEmbeddingColumnWidth(testCtx, targetTableName, testDB)
	require.NoError(t, err)
	assert.Equal(t, testDimensions, width)

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, CreateSchema(testCtx, appState, testDB))
	})

	t.Run("dimension change is refused", func(t *testing.T) {
		other := *appState.Config
		other.Embedding.Dimensions = testDimensions * 2
		err := CreateSchema(testCtx, &models.AppState{Config: &other}, testDB)
		assert.Error(t, err)
	})
}

func TestTargetStorePutGetAll(t *testing.T) {
	requireDB(t)
	freshSchema(t)

	dao := NewTargetStoreDAO(testDB)
	r := rand.New(rand.NewSource(1))

	empty, err := dao.GetAll(testCtx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := make([]models.Target, 25)
	for i := range want {
		want[i] = testutils.RandomTarget(r, testDimensions)
	}
	// re-enrollment of the same identity is a second row
	want[20].UUID = want[3].UUID

	for i := range want {
		require.NoError(t, dao.Put(testCtx, &want[i]))
	}

	got, err := dao.GetAll(testCtx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].UUID, got[i].UUID)
		assert.Equal(t, want[i].Origin, got[i].Origin)
		assert.InDeltaSlice(t, want[i].Embedding, got[i].Embedding, 1e-6)
	}
}

func TestTargetStorePutWrongWidth(t *testing.T) {
	requireDB(t)
	freshSchema(t)

	dao := NewTargetStoreDAO(testDB)
	target := testutils.RandomTarget(rand.New(rand.NewSource(2)), testDimensions+1)

	err := dao.Put(testCtx, &target)
	assert.ErrorIs(t, err, models.ErrDurability)

	got, err := dao.GetAll(testCtx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenerateFixtureData(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, GenerateFixtureData(40, testDimensions, dir))

	data, err := os.ReadFile(filepath.Join(dir, targetFixtureFile))
	require.NoError(t, err)

	var fixtures Fixtures
	require.NoError(t, yaml.Unmarshal(data, &fixtures))
	require.Len(t, fixtures, 1)
	assert.Equal(t, "TargetSchema", fixtures[0].Model)
	require.Len(t, fixtures[0].Rows, 40)
	for _, row := range fixtures[0].Rows {
		assert.Len(t, row.Embedding, testDimensions)
		assert.NotEmpty(t, row.Origin)
		assert.LessOrEqual(t, len(row.Origin), models.MaxOriginLength)
	}
}

func TestLoadFixtures(t *testing.T) {
	requireDB(t)

	dir := t.TempDir()
	require.NoError(t, GenerateFixtureData(30, testDimensions, dir))
	require.NoError(t, LoadFixtures(testCtx, appState, testDB, dir))

	got, err := NewTargetStoreDAO(testDB).GetAll(testCtx)
	require.NoError(t, err)
	assert.Len(t, got, 30)
}
