package search

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlfacerec/owlface/pkg/models"
)

const testDims = 64

func randomUnitVector(t *testing.T, r *rand.Rand, dims int) []float32 {
	t.Helper()
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	n, ok := Normalize(v)
	require.True(t, ok)
	return n
}

func randomTargets(t *testing.T, r *rand.Rand, n, dims int) []models.Target {
	t.Helper()
	targets := make([]models.Target, n)
	for i := range targets {
		targets[i] = models.Target{
			UUID:      uuid.New(),
			Origin:    "camera-1",
			Embedding: randomUnitVector(t, r, dims),
		}
	}
	return targets
}

// referenceSearch is a single-threaded scan with the same ordering rules.
func referenceSearch(targets []models.Target, query models.SearchQuery) []models.SearchResult {
	type scored struct {
		index int
		score float32
	}
	var all []scored
	for i, t := range targets {
		s := Similarity(query.Embedding, t.Embedding)
		if s >= query.Threshold {
			all = append(all, scored{index: i, score: s})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > query.Limit {
		all = all[:query.Limit]
	}
	results := make([]models.SearchResult, len(all))
	for i, s := range all {
		results[i] = models.SearchResult{
			UUID:       targets[s.index].UUID,
			Origin:     targets[s.index].Origin,
			Similarity: s.score,
		}
	}
	return results
}

func TestSimilarityProperties(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	t.Run("self similarity is one", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			e := randomUnitVector(t, r, 512)
			assert.InDelta(t, 1.0, Similarity(e, e), 1e-5)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			a := randomUnitVector(t, r, 512)
			b := randomUnitVector(t, r, 512)
			assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-6)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		a := randomUnitVector(t, r, 512)
		b := randomUnitVector(t, r, 512)
		s := Similarity(a, b)
		assert.LessOrEqual(t, s, float32(1.0001))
		assert.GreaterOrEqual(t, s, float32(-1.0001))
	})
}

func TestNormalize(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		n, ok := Normalize([]float32{3, 4})
		require.True(t, ok)
		assert.InDelta(t, 0.6, n[0], 1e-6)
		assert.InDelta(t, 0.8, n[1], 1e-6)
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := []float32{3, 4}
		_, ok := Normalize(in)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, in)
	})

	t.Run("degenerate", func(t *testing.T) {
		for _, v := range [][]float32{nil, {}, {0, 0, 0}, {float32(math.NaN()), 1}} {
			_, ok := Normalize(v)
			assert.False(t, ok)
		}
	})
}

func TestEngineSearch(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))
	targets := randomTargets(t, r, 1000, testDims)
	engine := NewEngine(8, 16)

	t.Run("empty store", func(t *testing.T) {
		results, err := engine.Search(ctx, nil, models.SearchQuery{
			Embedding: randomUnitVector(t, r, testDims),
			Threshold: -1,
			Limit:     5,
		})
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("non positive limit", func(t *testing.T) {
		for _, limit := range []int{0, -3} {
			_, err := engine.Search(ctx, targets, models.SearchQuery{
				Embedding: targets[0].Embedding,
				Limit:     limit,
			})
			assert.ErrorIs(t, err, models.ErrInvalidQuery)
		}
	})

	t.Run("non finite threshold", func(t *testing.T) {
		for _, th := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := engine.Search(ctx, targets, models.SearchQuery{
				Embedding: targets[0].Embedding,
				Threshold: float32(th),
				Limit:     1,
			})
			assert.ErrorIs(t, err, models.ErrInvalidQuery)
		}
	})

	t.Run("out of range threshold yields nothing", func(t *testing.T) {
		results, err := engine.Search(ctx, targets, models.SearchQuery{
			Embedding: targets[0].Embedding,
			Threshold: 1.5,
			Limit:     10,
		})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		_, err := engine.Search(ctx, targets, models.SearchQuery{
			Embedding: randomUnitVector(t, r, testDims+1),
			Limit:     1,
		})
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})

	t.Run("exact match ranks first", func(t *testing.T) {
		want := targets[517]
		results, err := engine.Search(ctx, targets, models.SearchQuery{
			Embedding: want.Embedding,
			Threshold: 0.99,
			Limit:     1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, want.UUID, results[0].UUID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	})

	t.Run("limit respected and sorted", func(t *testing.T) {
		for _, limit := range []int{1, 3, 10, 100, 5000} {
			results, err := engine.Search(ctx, targets, models.SearchQuery{
				Embedding: targets[3].Embedding,
				Threshold: -1,
				Limit:     limit,
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), limit)
			assert.True(t, sort.SliceIsSorted(results, func(i, j int) bool {
				return results[i].Similarity > results[j].Similarity
			}))
		}
	})

	t.Run("threshold monotonicity", func(t *testing.T) {
		query := randomUnitVector(t, r, testDims)
		previous := math.MaxInt
		for th := float32(-1); th <= 1; th += 0.05 {
			results, err := engine.Search(ctx, targets, models.SearchQuery{
				Embedding: query,
				Threshold: th,
				Limit:     len(targets),
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), previous)
			for _, res := range results {
				assert.GreaterOrEqual(t, res.Similarity, th)
			}
			previous = len(results)
		}
	})
}

func TestEngineMatchesReferenceScan(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	targets := randomTargets(t, r, 3001, testDims)

	tests := []struct {
		name    string
		workers int
		chunk   int
	}{
		{"single worker", 1, 256},
		{"default workers", 0, 64},
		{"more workers than chunks", 64, 1000},
		{"tiny chunks", 13, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.workers, tt.chunk)
			for i := 0; i < 10; i++ {
				query := models.SearchQuery{
					Embedding: randomUnitVector(t, r, testDims),
					Threshold: 0.1,
					Limit:     1 + r.Intn(50),
				}
				got, err := engine.Search(ctx, targets, query)
				require.NoError(t, err)
				assert.Equal(t, referenceSearch(targets, query), got)
			}
		})
	}
}

func TestEngineConcurrentSearches(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(9))
	targets := randomTargets(t, r, 2000, testDims)
	engine := NewEngine(4, 32)

	queries := make([]models.SearchQuery, 32)
	for i := range queries {
		queries[i] = models.SearchQuery{
			Embedding: randomUnitVector(t, r, testDims),
			Threshold: 0,
			Limit:     10,
		}
	}

	var wg sync.WaitGroup
	got := make([][]models.SearchResult, len(queries))
	errs := make([]error, len(queries))
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = engine.Search(ctx, targets, queries[i])
		}(i)
	}
	wg.Wait()

	for i, q := range queries {
		require.NoError(t, errs[i])
		assert.Equal(t, referenceSearch(targets, q), got[i])
	}
}

func TestEngineTieBreakByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(11))
	shared := randomUnitVector(t, r, testDims)

	targets := randomTargets(t, r, 600, testDims)
	// Spread identical embeddings across chunks so ties meet in the merge.
	tiePositions := []int{5, 130, 299, 412, 599}
	for i, pos := range tiePositions {
		targets[pos].Embedding = append([]float32(nil), shared...)
		targets[pos].Origin = "tie"
		targets[pos].UUID = uuid.MustParse(
			[]string{
				"00000000-0000-0000-0000-000000000005",
				"00000000-0000-0000-0000-000000000004",
				"00000000-0000-0000-0000-000000000003",
				"00000000-0000-0000-0000-000000000002",
				"00000000-0000-0000-0000-000000000001",
			}[i],
		)
	}

	engine := NewEngine(6, 50)
	query := models.SearchQuery{Embedding: shared, Threshold: 0.99, Limit: 3}

	first, err := engine.Search(ctx, targets, query)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i, pos := range tiePositions[:3] {
		assert.Equal(t, targets[pos].UUID, first[i].UUID)
	}

	for i := 0; i < 20; i++ {
		again, err := engine.Search(ctx, targets, query)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngineCancellation(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	targets := randomTargets(t, r, 5000, testDims)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, engine := range []*Engine{NewEngine(1, 100000), NewEngine(4, 100)} {
		_, err := engine.Search(ctx, targets, models.SearchQuery{
			Embedding: targets[0].Embedding,
			Limit:     1,
		})
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		min     int
		n       int
		want    int
	}{
		{"small population runs inline", 8, 256, 100, 1},
		{"bounded by workers", 4, 10, 1000, 4},
		{"bounded by chunk size", 16, 100, 350, 4},
		{"single element", 8, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := NewEngine(tt.workers, tt.min).partition(tt.n)
			assert.Len(t, chunks, tt.want)
			covered := 0
			for i, c := range chunks {
				if i > 0 {
					assert.Equal(t, chunks[i-1].end, c.start)
				}
				covered += c.end - c.start
			}
			assert.Equal(t, 0, chunks[0].start)
			assert.Equal(t, tt.n, covered)
		})
	}
}
