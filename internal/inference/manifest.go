package inference

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
)

const (
	DefaultModelID      = "prescription_model_final"
	DefaultBaseModel    = "google/flan-t5-base"
	DefaultPromptPrefix = "extract prescription: "
	DefaultMaxLength    = 128
)

// Manifest describes the fine-tuned checkpoint the service was started with.
// It is written by the train command and read once at start-up.
type Manifest struct {
	ModelID      string   `json:"model_id"`
	BaseModel    string   `json:"base_model"`
	PromptPrefix string   `json:"prompt_prefix"`
	MaxLength    int      `json:"max_length"`
	Fields       []string `json:"fields"`
}

func DefaultManifest() Manifest {
	return Manifest{
		ModelID:      DefaultModelID,
		BaseModel:    DefaultBaseModel,
		PromptPrefix: DefaultPromptPrefix,
		MaxLength:    DefaultMaxLength,
		Fields:       []string{"medication", "dosage", "frequency", "duration"},
	}
}

// Prompt formats OCR text as model input.
func (m Manifest) Prompt(text string) string {
	return m.PromptPrefix + text
}

// ObjectGetter fetches an object from the model store.
type ObjectGetter interface {
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// DecodeManifest reads a manifest and fills unset fields from the defaults.
func DecodeManifest(r io.Reader) (Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	m := DefaultManifest()
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.MaxLength <= 0 {
		m.MaxLength = DefaultMaxLength
	}
	if len(m.Fields) == 0 {
		m.Fields = DefaultManifest().Fields
	}
	return m, nil
}

func LoadManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return DecodeManifest(f)
}

func LoadManifestObject(ctx context.Context, store ObjectGetter, key string) (Manifest, error) {
	body, err := store.DownloadFile(ctx, key)
	if err != nil {
		return Manifest{}, fmt.Errorf("download manifest %s: %w", key, err)
	}
	defer body.Close()
	return DecodeManifest(body)
}

// LoadManifest resolves the checkpoint manifest: an object key wins over a
// local path. With neither, defaults are used and maxLength, when positive,
// replaces the default generation length.
func LoadManifest(ctx context.Context, path, key string, store ObjectGetter, maxLength int) (Manifest, error) {
	var (
		m   Manifest
		err error
	)
	switch {
	case key != "" && store != nil:
		m, err = LoadManifestObject(ctx, store, key)
	case path != "":
		m, err = LoadManifestFile(path)
	default:
		m = DefaultManifest()
		if maxLength > 0 {
			m.MaxLength = maxLength
		}
	}
	if err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func EncodeManifest(w io.Writer, m Manifest) error {
	data, err := sonic.ConfigStd.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
