package inference

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPModelGenerate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "list response",
			response: `[{"generated_text": "{'medication': 'Amoxicillin'}"}]`,
			expected: "{'medication': 'Amoxicillin'}",
		},
		{
			name:     "object response",
			response: `{"generated_text": "dosage: 500mg"}`,
			expected: "dosage: 500mg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotBody, _ = io.ReadAll(r.Body)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			model := NewHTTPModel(srv.URL+"/generate", DefaultManifest(), time.Second, zap.NewNop())
			out, err := model.Generate(context.Background(), []string{"extract prescription: Amoxicillin"})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.expected, out[0])
			assert.JSONEq(t, `{"inputs":"extract prescription: Amoxicillin","parameters":{"max_new_tokens":128}}`, string(gotBody))
		})
	}
}

func TestHTTPModelErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		errText  string
	}{
		{name: "server error", status: http.StatusInternalServerError, response: "oom", errText: "status 500"},
		{name: "empty list", status: http.StatusOK, response: "[]", errText: "no generations"},
		{name: "empty body", status: http.StatusOK, response: "", errText: "empty body"},
		{name: "garbage", status: http.StatusOK, response: "{not json", errText: "decode response"},
		{name: "oversized", status: http.StatusOK, response: `[{"generated_text":"` + strings.Repeat("a", MaxResponseBytes) + `"}]`, errText: "response exceeds 1048576 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			model := NewHTTPModel(srv.URL, DefaultManifest(), time.Second, zap.NewNop())
			_, err := model.Generate(context.Background(), []string{"x"})
			assert.ErrorContains(t, err, tt.errText)
		})
	}
}

func TestHTTPModelCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	model := NewHTTPModel(srv.URL+"/generate", DefaultManifest(), time.Second, zap.NewNop())
	assert.NoError(t, model.CheckHealth(context.Background()))
}

type fakeStore struct {
	objects map[string]string
}

func (f fakeStore) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	v, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func TestLoadManifest(t *testing.T) {
	ctx := context.Background()

	m, err := LoadManifest(ctx, "", "", nil, 64)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseModel, m.BaseModel)
	assert.Equal(t, 64, m.MaxLength)

	store := fakeStore{objects: map[string]string{
		"models/v2/manifest.json": `{"model_id": "rx-v2", "prompt_prefix": "rx: "}`,
	}}
	m, err = LoadManifest(ctx, "", "models/v2/manifest.json", store, 64)
	require.NoError(t, err)
	assert.Equal(t, "rx-v2", m.ModelID)
	assert.Equal(t, "rx: hello", m.Prompt("hello"))
	assert.Equal(t, DefaultMaxLength, m.MaxLength)
	assert.Len(t, m.Fields, 4)

	_, err = LoadManifest(ctx, "", "missing", store, 0)
	assert.Error(t, err)
}

func TestManifestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	want := DefaultManifest()
	want.ModelID = "rx-local"

	var buf bytes.Buffer
	require.NoError(t, EncodeManifest(&buf, want))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := LoadManifest(context.Background(), path, "", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
