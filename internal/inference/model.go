// Package inference talks to the fine-tuned text-to-text model that turns
// OCR output into prescription fields.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Model is a sequence-to-sequence generator such as a fine-tuned FLAN-T5.
type Model interface {
	Name() string
	// Generate returns one generated text per input, in order.
	Generate(ctx context.Context, inputs []string) ([]string, error)
}

type generateParameters struct {
	MaxNewTokens int `json:"max_new_tokens,omitempty"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// HTTPModel calls a text-generation server that speaks the Hugging Face
// inference protocol: POST {"inputs": ...} and receive generated_text.
type HTTPModel struct {
	url      string
	manifest Manifest
	client   *http.Client
	log      *zap.Logger
}

var _ Model = (*HTTPModel)(nil)

// MaxResponseBytes caps a generation reply.
const MaxResponseBytes = 1 << 20

func NewHTTPModel(endpoint string, manifest Manifest, timeout time.Duration, log *zap.Logger) *HTTPModel {
	return &HTTPModel{
		url:      endpoint,
		manifest: manifest,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (m *HTTPModel) Name() string { return m.manifest.ModelID }

func (m *HTTPModel) Generate(ctx context.Context, inputs []string) ([]string, error) {
	outputs := make([]string, 0, len(inputs))
	for i, in := range inputs {
		out, err := m.generateOne(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("generate input %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (m *HTTPModel) generateOne(ctx context.Context, input string) (string, error) {
	payload, err := sonic.Marshal(generateRequest{
		Inputs:     input,
		Parameters: generateParameters{MaxNewTokens: m.manifest.MaxLength},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return "", fmt.Errorf("response exceeds %d bytes", MaxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	text, err := decodeGeneration(body)
	if err != nil {
		return "", err
	}

	m.log.Debug("Model generated output",
		zap.String("model", m.manifest.ModelID),
		zap.Int("input_len", len(input)),
		zap.Int("output_len", len(text)),
		zap.Duration("duration", time.Since(start)))

	return text, nil
}

// decodeGeneration accepts both the list form [{"generated_text": ...}] and
// the single-object form {"generated_text": ...}.
func decodeGeneration(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("decode response: empty body")
	}
	if trimmed[0] == '[' {
		var list []generation
		if err := sonic.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("decode response: no generations")
		}
		return list[0].GeneratedText, nil
	}
	var single generation
	if err := sonic.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return single.GeneratedText, nil
}

// CheckHealth calls GET /health on the inference server host.
func (m *HTTPModel) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(m.url)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", m.url, err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
