// Package analysis turns extracted prescription text into the four-field
// domain.Analysis record.
package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/inference"
	"github.com/MuhaiminulSajid16/image-to-text/internal/metrics"
)

type Analyzer interface {
	Analyze(ctx context.Context, text string) (domain.Analysis, error)
}

// SourceAnalyzer also reports which backend produced the analysis.
type SourceAnalyzer interface {
	AnalyzeWithSource(ctx context.Context, text string) (domain.Analysis, string, error)
}

// Run analyzes text and returns the backend that answered.
func Run(ctx context.Context, a Analyzer, text string) (domain.Analysis, string, error) {
	if sa, ok := a.(SourceAnalyzer); ok {
		return sa.AnalyzeWithSource(ctx, text)
	}
	res, err := a.Analyze(ctx, text)
	return res, sourceOf(a), err
}

// ModelAnalyzer prompts the fine-tuned model and parses its reply.
type ModelAnalyzer struct {
	model    inference.Model
	manifest inference.Manifest
	log      *zap.Logger
}

func NewModelAnalyzer(model inference.Model, manifest inference.Manifest, log *zap.Logger) *ModelAnalyzer {
	return &ModelAnalyzer{model: model, manifest: manifest, log: log}
}

func (a *ModelAnalyzer) Analyze(ctx context.Context, text string) (domain.Analysis, error) {
	start := time.Now()
	outputs, err := a.model.Generate(ctx, []string{a.manifest.Prompt(text)})
	metrics.RecordInferenceDuration(domain.SourceModel, time.Since(start).Seconds())
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %s: %v", domain.ErrInferenceFailed, a.model.Name(), err)
	}
	if len(outputs) == 0 {
		return domain.Analysis{}, fmt.Errorf("%w: %s returned no output", domain.ErrInferenceFailed, a.model.Name())
	}

	result, err := ParseOutput(outputs[0])
	if err != nil {
		a.log.Warn("Unparseable model output",
			zap.String("model", a.model.Name()),
			zap.String("output", truncate(outputs[0], 200)))
		return domain.Analysis{}, err
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
