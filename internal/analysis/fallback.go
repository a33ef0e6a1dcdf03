package analysis

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/metrics"
)

// FallbackAnalyzer asks the primary analyzer first and answers from the
// secondary one when the primary fails with an inference or parse error.
type FallbackAnalyzer struct {
	primary         Analyzer
	secondary       Analyzer
	primarySource   string
	secondarySource string
	log             *zap.Logger
}

var (
	_ Analyzer       = (*FallbackAnalyzer)(nil)
	_ SourceAnalyzer = (*FallbackAnalyzer)(nil)
)

func NewFallbackAnalyzer(primary, secondary Analyzer, log *zap.Logger) *FallbackAnalyzer {
	return &FallbackAnalyzer{
		primary:         primary,
		secondary:       secondary,
		primarySource:   sourceOf(primary),
		secondarySource: sourceOf(secondary),
		log:             log,
	}
}

func (f *FallbackAnalyzer) Analyze(ctx context.Context, text string) (domain.Analysis, error) {
	res, _, err := f.AnalyzeWithSource(ctx, text)
	return res, err
}

func (f *FallbackAnalyzer) AnalyzeWithSource(ctx context.Context, text string) (domain.Analysis, string, error) {
	res, err := f.primary.Analyze(ctx, text)
	if err == nil {
		return res, f.primarySource, nil
	}

	reason := fallbackReason(err)
	if reason == "" || ctx.Err() != nil {
		return domain.Analysis{}, f.primarySource, err
	}

	f.log.Warn("Primary analyzer failed, using fallback",
		zap.String("primary", f.primarySource),
		zap.String("fallback", f.secondarySource),
		zap.String("reason", reason),
		zap.Error(err))
	metrics.RecordFallback(reason)

	res, err = f.secondary.Analyze(ctx, text)
	if err != nil {
		return domain.Analysis{}, f.secondarySource, err
	}
	return res, f.secondarySource, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInferenceFailed):
		return "inference"
	case errors.Is(err, domain.ErrParseFailed):
		return "parse"
	default:
		return ""
	}
}

func sourceOf(a Analyzer) string {
	switch a.(type) {
	case *ModelAnalyzer:
		return domain.SourceModel
	case *RuleAnalyzer:
		return domain.SourceRules
	default:
		return ""
	}
}
