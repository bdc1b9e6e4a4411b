package search

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/owlfacerec/owlface/pkg/models"
)

// cancelCheckInterval is how many Targets a worker scores between context checks.
const cancelCheckInterval = 1024

const DefaultMinChunkSize = 256

// Engine ranks Targets against a query by exact linear scan. The scan is split into
// contiguous chunks scored in parallel; each chunk keeps only its local top-limit, and the
// partial lists are merged into the global top-limit.
//
// Equal similarities are ordered by position in the scanned slice, so the Target
// registered first ranks first.
type Engine struct {
	workers      int
	minChunkSize int
}

// NewEngine returns an Engine using up to workers goroutines per search (GOMAXPROCS if
// workers <= 0) and never giving a goroutine fewer than minChunkSize Targets.
func NewEngine(workers, minChunkSize int) *Engine {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	return &Engine{workers: workers, minChunkSize: minChunkSize}
}

type candidate struct {
	index int
	score float32
}

// ranksBefore is the total order of results: higher score first, then lower index.
func ranksBefore(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.index < b.index
}

type chunk struct {
	start, end int
}

// Search scores every Target in targets against query. targets is treated as read-only
// and must satisfy the store invariant that all embeddings share one length.
func (e *Engine) Search(
	ctx context.Context,
	targets []models.Target,
	query models.SearchQuery,
) ([]models.SearchResult, error) {
	if err := ValidateParameters(query.Threshold, query.Limit); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return []models.SearchResult{}, nil
	}
	dims := len(targets[0].Embedding)
	if len(query.Embedding) != dims {
		return nil, models.NewDimensionMismatchError(dims, len(query.Embedding))
	}

	chunks := e.partition(len(targets))
	partials := make([][]candidate, len(chunks))

	if len(chunks) == 1 {
		top, err := scan(ctx, targets, chunks[0], query)
		if err != nil {
			return nil, err
		}
		partials[0] = top
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range chunks {
			i, c := i, c
			g.Go(func() error {
				top, err := scan(gctx, targets, c, query)
				partials[i] = top
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	merged := merge(partials, query.Limit)

	results := make([]models.SearchResult, len(merged))
	for i, c := range merged {
		t := targets[c.index]
		results[i] = models.SearchResult{
			UUID:       t.UUID,
			Origin:     t.Origin,
			Similarity: c.score,
		}
	}
	return results, nil
}

// ValidateParameters reports an InvalidQueryError for a non-positive limit or a threshold
// that is not a finite number. Finite thresholds outside [-1, 1] are allowed.
func ValidateParameters(threshold float32, limit int) error {
	if limit <= 0 {
		return models.NewInvalidQueryError("limit must be a positive integer")
	}
	th := float64(threshold)
	if math.IsNaN(th) || math.IsInf(th, 0) {
		return models.NewInvalidQueryError("threshold must be a finite number")
	}
	return nil
}

// partition splits n Targets into contiguous chunks, one per worker.
func (e *Engine) partition(n int) []chunk {
	workers := e.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxChunks := (n + e.minChunkSize - 1) / e.minChunkSize
	if workers > maxChunks {
		workers = maxChunks
	}
	if workers < 1 {
		workers = 1
	}

	size := (n + workers - 1) / workers
	chunks := make([]chunk, 0, workers)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, chunk{start: start, end: end})
	}
	return chunks
}

// scan scores one chunk and returns its candidates at or above the threshold, ranked and
// truncated to query.Limit.
func scan(
	ctx context.Context,
	targets []models.Target,
	c chunk,
	query models.SearchQuery,
) ([]candidate, error) {
	dims := len(query.Embedding)
	top := make([]candidate, 0, min(query.Limit, c.end-c.start))

	for i := c.start; i < c.end; i++ {
		if (i-c.start)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		embedding := targets[i].Embedding
		if len(embedding) != dims {
			return nil, models.NewDimensionMismatchError(dims, len(embedding))
		}

		score := Similarity(query.Embedding, embedding)
		// NaN never passes
		if !(score >= query.Threshold) {
			continue
		}

		cand := candidate{index: i, score: score}
		if len(top) == query.Limit && !ranksBefore(cand, top[len(top)-1]) {
			continue
		}
		pos := sort.Search(len(top), func(j int) bool { return ranksBefore(cand, top[j]) })
		if len(top) < query.Limit {
			top = append(top, candidate{})
		}
		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = cand
	}
	return top, nil
}

// merge combines ranked partial lists into the global top-limit.
func merge(partials [][]candidate, limit int) []candidate {
	total := 0
	for _, p := range partials {
		total += len(p)
	}
	merged := make([]candidate, 0, total)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool { return ranksBefore(merged[i], merged[j]) })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
