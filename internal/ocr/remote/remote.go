// Package remote implements ocr.Engine against an HTTP OCR side-car, such as
// an EasyOCR server, that accepts a multipart image and answers with
// detections.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"

	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
)

type detection struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type response struct {
	Detections []detection `json:"detections"`
}

const maxResponseBytes = 4 << 20

type Engine struct {
	url    string
	client *http.Client
}

var (
	_ ocr.Engine        = (*Engine)(nil)
	_ ocr.HealthChecker = (*Engine)(nil)
)

func New(endpoint string, timeout time.Duration) *Engine {
	return &Engine{
		url:    endpoint,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *Engine) Name() string { return "remote" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return ocr.Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(in.Image)); err != nil {
		return ocr.Result{}, fmt.Errorf("copy image data: %w", err)
	}
	for _, lang := range in.Languages {
		if err := writer.WriteField("lang", lang); err != nil {
			return ocr.Result{}, fmt.Errorf("write language: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ocr.Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ocr.Result{}, fmt.Errorf("ocr service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxResponseBytes {
		return ocr.Result{}, fmt.Errorf("ocr response exceeds %d bytes", maxResponseBytes)
	}

	var out response
	if err := sonic.Unmarshal(data, &out); err != nil {
		return ocr.Result{}, fmt.Errorf("decode response: %w", err)
	}

	lines := make([]ocr.Line, 0, len(out.Detections))
	for _, d := range out.Detections {
		lines = append(lines, ocr.Line{Text: d.Text, Confidence: d.Confidence})
	}
	return ocr.Result{Lines: lines}, nil
}

// CheckHealth calls GET /health on the OCR service host.
func (e *Engine) CheckHealth(ctx context.Context) error {
	healthURL, err := siblingURL(e.url, "/health")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ocr service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func siblingURL(raw, path string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}
