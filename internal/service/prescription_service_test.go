package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/analysis"
	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
)

type fakeEngine struct {
	lines []ocr.Line
	err   error
	calls atomic.Int32

	mu     sync.Mutex
	inputs []ocr.Input
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Lines: f.lines}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		OCR: config.OCRConfig{
			Languages:  []string{"eng"},
			Threshold:  ocr.DefaultThreshold,
			Preprocess: false,
			DPI:        300,
		},
		Batch: config.BatchConfig{Concurrency: 2, MaxFiles: 10},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func prescriptionLines() []ocr.Line {
	return []ocr.Line{
		{Text: "Amoxicillin 500mg", Confidence: 0.93},
		{Text: "Take 1 capsule three times daily for 7 days", Confidence: 0.88},
		{Text: "smudge", Confidence: 0.3},
	}
}

func TestAnalyze(t *testing.T) {
	engine := &fakeEngine{lines: prescriptionLines()}
	svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())

	res, err := svc.Analyze(context.Background(), domain.Upload{Data: pngBytes(t, 40, 20), Filename: "rx.png"})
	require.NoError(t, err)

	assert.Equal(t, "Amoxicillin 500mg\nTake 1 capsule three times daily for 7 days", res.ExtractedText)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "amoxicillin", res.Analysis.Medication)
	assert.Equal(t, "500mg", res.Analysis.Dosage)
	assert.Equal(t, domain.SourceRules, res.Source)
	assert.Empty(t, res.Error)

	require.Len(t, engine.inputs, 1)
	assert.Equal(t, []string{"eng"}, engine.inputs[0].Languages)
	assert.Equal(t, 300, engine.inputs[0].DPI)
}

func TestAnalyzeAppliesCrop(t *testing.T) {
	engine := &fakeEngine{lines: prescriptionLines()}
	svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())

	_, err := svc.Analyze(context.Background(), domain.Upload{
		Data: pngBytes(t, 40, 20),
		Crop: &domain.Crop{X: 10, Y: 5, Width: 100, Height: 100},
	})
	require.NoError(t, err)

	require.Len(t, engine.inputs, 1)
	img, err := png.Decode(bytes.NewReader(engine.inputs[0].Image))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 15, img.Bounds().Dy())
}

func TestAnalyzeNoText(t *testing.T) {
	engine := &fakeEngine{lines: []ocr.Line{{Text: "blur", Confidence: 0.5}}}
	svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())

	res, err := svc.Analyze(context.Background(), domain.Upload{Data: pngBytes(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, domain.EmptyResult(), res)
}

func TestAnalyzeErrors(t *testing.T) {
	t.Run("invalid image", func(t *testing.T) {
		svc := NewPrescriptionService(&fakeEngine{}, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())
		_, err := svc.Analyze(context.Background(), domain.Upload{Data: []byte("not an image")})
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
	})

	t.Run("too many pixels", func(t *testing.T) {
		engine := &fakeEngine{lines: prescriptionLines()}
		cfg := testConfig()
		cfg.App.MaxPixels = 50
		svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, cfg, zap.NewNop())
		_, err := svc.Analyze(context.Background(), domain.Upload{Data: pngBytes(t, 10, 10)})
		assert.ErrorIs(t, err, domain.ErrInvalidImage)
		assert.Equal(t, int32(0), engine.calls.Load())
	})

	t.Run("ocr failure", func(t *testing.T) {
		engine := &fakeEngine{err: errors.New("tesseract crashed")}
		svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())
		_, err := svc.Analyze(context.Background(), domain.Upload{Data: pngBytes(t, 10, 10)})
		assert.ErrorIs(t, err, domain.ErrOCRFailed)
		assert.Equal(t, domain.ErrOCRFailed.Error(), ErrorMessage(err))
	})
}

func TestAnalyzeBatch(t *testing.T) {
	engine := &fakeEngine{lines: prescriptionLines()}
	svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())

	ups := []domain.Upload{
		{Data: pngBytes(t, 10, 10), Filename: "a.png"},
		{Data: []byte("garbage"), Filename: "b.png"},
		{Data: pngBytes(t, 12, 12), Filename: "c.png"},
	}
	items := svc.AnalyzeBatch(context.Background(), ups)

	require.Len(t, items, 3)
	assert.Equal(t, "a.png", items[0].Filename)
	assert.NotEmpty(t, items[0].ExtractedText)
	assert.Empty(t, items[0].Error)

	assert.Equal(t, "b.png", items[1].Filename)
	assert.Equal(t, domain.ErrInvalidImage.Error(), items[1].Error)
	assert.Nil(t, items[1].Analysis)

	assert.Equal(t, "c.png", items[2].Filename)
	assert.Equal(t, "amoxicillin", items[2].Analysis.Medication)
}

func TestAnalyzeUsesCache(t *testing.T) {
	engine := &fakeEngine{lines: prescriptionLines()}
	cache := NewResultCache(time.Minute, 16, 0, zap.NewNop())
	defer cache.Close()
	svc := NewPrescriptionService(engine, analysis.NewRuleAnalyzer(), "rules", cache, testConfig(), zap.NewNop())

	data := pngBytes(t, 10, 10)
	first, err := svc.Analyze(context.Background(), domain.Upload{Data: data})
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), domain.Upload{Data: data})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), engine.calls.Load())

	_, err = svc.Analyze(context.Background(), domain.Upload{Data: data, Crop: &domain.Crop{Width: 5, Height: 5}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestBackends(t *testing.T) {
	svc := NewPrescriptionService(&fakeEngine{}, analysis.NewRuleAnalyzer(), "rules", nil, testConfig(), zap.NewNop())
	assert.Equal(t, Backends{OCR: "fake", Model: "rules"}, svc.Backends())

	empty := NewPrescriptionService(nil, nil, "", nil, testConfig(), zap.NewNop())
	assert.Equal(t, Backends{}, empty.Backends())
}
