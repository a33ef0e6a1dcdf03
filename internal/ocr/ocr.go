// Package ocr defines the text-extraction stage: a small engine contract that
// local libraries and remote services implement, and confidence filtering of
// their output.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
)

// DefaultThreshold drops lines the engine is not at least this sure about.
const DefaultThreshold = 0.5

// Input is one encoded image submitted for recognition.
type Input struct {
	Image []byte
	// Languages are engine language hints, e.g. "eng".
	Languages []string
	// DPI is the effective resolution; zero means unknown.
	DPI int
}

// Line is one recognized line of text. Confidence is in [0, 1].
type Line struct {
	Text       string
	Confidence float64
}

type Result struct {
	Lines []Line
}

// Engine is one image in, recognized lines out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// HealthChecker is implemented by engines that depend on an external process.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Filter keeps the lines whose confidence is strictly above threshold and
// joins them with newlines.
func Filter(res Result, threshold float64) string {
	var sb strings.Builder
	for _, line := range res.Lines {
		if line.Confidence <= threshold {
			continue
		}
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

// Extract runs engine over in and returns the filtered text. Engine failures
// are reported as domain.ErrOCRFailed.
func Extract(ctx context.Context, engine Engine, in Input, threshold float64) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrOCRFailed, engine.Name(), err)
	}
	return Filter(res, threshold), nil
}
