package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MuhaiminulSajid16/image-to-text/internal/analysis"
	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/metrics"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
	"github.com/MuhaiminulSajid16/image-to-text/pkg/utils"
)

type PrescriptionService interface {
	// Analyze runs one upload through decode, crop, enhancement, OCR and
	// analysis. No text above the confidence threshold is not an error: the
	// result carries an error message and an empty analysis instead.
	Analyze(ctx context.Context, up domain.Upload) (*domain.UploadResult, error)
	// AnalyzeBatch analyzes uploads concurrently. Items keep the input order
	// and failures are reported per item.
	AnalyzeBatch(ctx context.Context, ups []domain.Upload) []domain.BatchItem
	Backends() Backends
}

// Backends names the engines a service was built with.
type Backends struct {
	OCR   string `json:"ocr"`
	Model string `json:"model"`
}

type prescriptionService struct {
	engine   ocr.Engine
	analyzer analysis.Analyzer
	model    string
	cache    *ResultCache
	cfg      *config.Config
	log      *zap.Logger
	proc     *utils.ImageProcessor
}

// NewPrescriptionService wires the pipeline. cache may be nil.
func NewPrescriptionService(engine ocr.Engine, analyzer analysis.Analyzer, model string, cache *ResultCache, cfg *config.Config, log *zap.Logger) PrescriptionService {
	return &prescriptionService{
		engine:   engine,
		analyzer: analyzer,
		model:    model,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		proc:     utils.NewImageProcessor(cfg.App.MaxPixels, log),
	}
}

func (s *prescriptionService) Backends() Backends {
	var b Backends
	if s.engine != nil {
		b.OCR = s.engine.Name()
	}
	if s.analyzer != nil {
		b.Model = s.model
	}
	return b
}

func (s *prescriptionService) Analyze(ctx context.Context, up domain.Upload) (*domain.UploadResult, error) {
	var (
		res *domain.UploadResult
		err error
	)
	if s.cache != nil {
		res, err = s.cache.GetOrCompute(ctx, up, func(ctx context.Context) (*domain.UploadResult, error) {
			return s.analyze(ctx, up)
		})
	} else {
		res, err = s.analyze(ctx, up)
	}

	switch {
	case err != nil:
		metrics.RecordUpload("error")
	case res.Error != "":
		metrics.RecordUpload("no_text")
	default:
		metrics.RecordUpload("ok")
	}
	return res, err
}

func (s *prescriptionService) analyze(ctx context.Context, up domain.Upload) (*domain.UploadResult, error) {
	if s.engine == nil || s.analyzer == nil {
		return nil, errors.New("service is not configured")
	}

	img, format, err := s.proc.Decode(up.Data)
	if err != nil {
		return nil, err
	}
	img = s.proc.Crop(img, up.Crop)

	var prepared image.Image = img
	if s.cfg.OCR.Preprocess {
		prepared = s.proc.Enhance(img)
	}
	encoded, err := s.proc.EncodePNG(prepared)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	start := time.Now()
	text, err := ocr.Extract(ctx, s.engine, ocr.Input{
		Image:     encoded,
		Languages: s.cfg.OCR.Languages,
		DPI:       s.cfg.OCR.DPI,
	}, s.cfg.OCR.Threshold)
	metrics.RecordOCRDuration(s.engine.Name(), time.Since(start).Seconds())
	if err != nil {
		s.log.Error("OCR failed",
			zap.String("filename", up.Filename),
			zap.String("engine", s.engine.Name()),
			zap.Error(err))
		return nil, err
	}

	if text == "" {
		s.log.Info("No text extracted",
			zap.String("filename", up.Filename),
			zap.String("format", format))
		return domain.EmptyResult(), nil
	}

	result, source, err := analysis.Run(ctx, s.analyzer, text)
	if err != nil {
		s.log.Error("Analysis failed",
			zap.String("filename", up.Filename),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("Prescription analyzed",
		zap.String("filename", up.Filename),
		zap.String("format", format),
		zap.Int("text_len", len(text)),
		zap.String("source", source),
		zap.Duration("duration", time.Since(start)))

	return &domain.UploadResult{
		ExtractedText: text,
		Analysis:      &result,
		Source:        source,
	}, nil
}

func (s *prescriptionService) AnalyzeBatch(ctx context.Context, ups []domain.Upload) []domain.BatchItem {
	items := make([]domain.BatchItem, len(ups))

	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Batch.Concurrency))

	for i, up := range ups {
		g.Go(func() error {
			items[i] = s.batchItem(ctx, up)
			return nil
		})
	}
	_ = g.Wait()

	return items
}

func (s *prescriptionService) batchItem(ctx context.Context, up domain.Upload) domain.BatchItem {
	item := domain.BatchItem{Filename: up.Filename}
	if err := ctx.Err(); err != nil {
		item.Error = err.Error()
		return item
	}

	res, err := s.Analyze(ctx, up)
	if err != nil {
		s.log.Error("Error processing file",
			zap.String("filename", up.Filename),
			zap.Error(err))
		item.Error = ErrorMessage(err)
		return item
	}

	item.ExtractedText = res.ExtractedText
	item.Analysis = res.Analysis
	item.Source = res.Source
	item.Error = res.Error
	return item
}

// ErrorMessage is the client-facing text for err: the category for known
// failures, the error itself otherwise.
func ErrorMessage(err error) string {
	for _, known := range []error{
		domain.ErrInvalidImage,
		domain.ErrUnsupportedFormat,
		domain.ErrFileTooLarge,
		domain.ErrOCRFailed,
		domain.ErrInferenceFailed,
		domain.ErrParseFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
