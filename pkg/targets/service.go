package targets

import (
	"context"
	"image"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/search"
	"github.com/owlfacerec/owlface/pkg/store/memory"
)

const tracerName = "github.com/owlfacerec/owlface/pkg/targets"

// logPreviewLength is how many embedding values are logged at debug level.
const logPreviewLength = 5

var _ models.TargetService = &Service{}

// Preprocessor turns a decoded image into the model input tensor.
type Preprocessor interface {
	Preprocess(img image.Image) (*models.Tensor, error)
}

// DecodeFunc decodes raw image bytes.
type DecodeFunc func(data []byte) (image.Image, error)

// Service runs registration and search requests: decode, preprocess, extract and
// normalize, then either persist and insert, or rank against the record store.
type Service struct {
	decode       DecodeFunc
	preprocessor Preprocessor
	extractor    models.EmbeddingExtractor
	store        *memory.RecordStore
	synchronizer *Synchronizer
	engine       *search.Engine
	tracer       trace.Tracer
}

func NewService(
	decode DecodeFunc,
	preprocessor Preprocessor,
	extractor models.EmbeddingExtractor,
	store *memory.RecordStore,
	synchronizer *Synchronizer,
	engine *search.Engine,
) *Service {
	return &Service{
		decode:       decode,
		preprocessor: preprocessor,
		extractor:    extractor,
		store:        store,
		synchronizer: synchronizer,
		engine:       engine,
		tracer:       otel.Tracer(tracerName),
	}
}

// embed runs the pipeline shared by Register and Search and returns a unit-length embedding.
func (s *Service) embed(ctx context.Context, data []byte) ([]float32, error) {
	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	if log.IsLevelEnabled(logrus.DebugLevel) {
		bounds := img.Bounds()
		log.Debugf(
			"decoded %dx%d image from %s",
			bounds.Dx(),
			bounds.Dy(),
			humanize.Bytes(uint64(len(data))),
		)
	}

	tensor, err := s.preprocessor.Preprocess(img)
	if err != nil {
		return nil, err
	}

	raw, err := s.extractor.Extract(ctx, tensor)
	if err != nil {
		return nil, asInferenceError(err)
	}

	embedding, ok := search.Normalize(raw)
	if !ok {
		return nil, models.NewInferenceError("model returned an embedding without direction", nil)
	}

	return embedding, nil
}

func (s *Service) Register(ctx context.Context, registration *models.Registration) (err error) {
	ctx, span := s.tracer.Start(ctx, "targets.Register", trace.WithAttributes(
		attribute.String("target.uuid", registration.UUID.String()),
	))
	defer func() { endSpan(span, err) }()

	embedding, err := s.embed(ctx, registration.Image)
	if err != nil {
		return err
	}

	origin := registration.Origin
	if origin == "" {
		origin = models.DefaultOrigin
	}

	target := models.Target{
		UUID:      registration.UUID,
		Origin:    origin,
		Embedding: embedding,
	}
	if err := s.synchronizer.Register(ctx, target); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"target_uuid": target.UUID,
		"origin":      target.Origin,
		"store_size":  s.store.Len(),
	}).Info("registered target")
	if log.IsLevelEnabled(logrus.DebugLevel) {
		log.Debugf("target %s embedding starts %v", target.UUID, preview(embedding))
	}

	return nil
}

func (s *Service) Search(ctx context.Context, probe *models.Probe) (results []models.SearchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "targets.Search", trace.WithAttributes(
		attribute.Float64("search.threshold", float64(probe.Threshold)),
		attribute.Int("search.limit", probe.Limit),
	))
	defer func() { endSpan(span, err) }()

	// no model round trip for a query that cannot be answered
	if err := search.ValidateParameters(probe.Threshold, probe.Limit); err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, probe.Image)
	if err != nil {
		return nil, err
	}

	snapshot := s.store.Snapshot()
	results, err = s.engine.Search(ctx, snapshot, models.SearchQuery{
		Embedding: embedding,
		Threshold: probe.Threshold,
		Limit:     probe.Limit,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("search.scanned", len(snapshot)),
		attribute.Int("search.results", len(results)),
	)
	log.WithFields(logrus.Fields{
		"scanned": len(snapshot),
		"results": len(results),
	}).Debugf("search probe starts %v", preview(embedding))

	return results, nil
}

func (s *Service) Stats() models.StoreStats {
	return models.StoreStats{
		Targets:    s.store.Len(),
		Dimensions: s.store.Dimensions(),
	}
}

func preview(embedding []float32) []float32 {
	return embedding[:min(logPreviewLength, len(embedding))]
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
