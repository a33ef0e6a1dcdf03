package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	S3     S3Config
	App    AppConfig
	OCR    OCRConfig
	Model  ModelConfig
	Cache  CacheConfig
	Batch  BatchConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	MaxUploadSize  int64
	MaxPixels      int64
	AllowedFormats []string
	ModelDir       string
	DatasetDir     string
}

type OCRConfig struct {
	// Engine is "tesseract" or "remote".
	Engine     string
	Languages  []string
	Threshold  float64
	RemoteURL  string
	Preprocess bool
	DPI        int
	Timeout    time.Duration
}

type ModelConfig struct {
	// Backend is "http" for a text-generation server or "rules" for the
	// built-in rule-based analyzer only.
	Backend      string
	InferenceURL string
	ManifestPath string
	ManifestKey  string
	MaxLength    int
	Timeout      time.Duration
	Fallback     bool
}

type CacheConfig struct {
	Enabled  bool
	TTL      time.Duration
	Capacity uint64
}

type BatchConfig struct {
	Concurrency int
	MaxFiles    int
}

type LogConfig struct {
	Level string
	Style string
}

func setDefaults() {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 120*time.Second)

	viper.SetDefault("S3_ENABLED", false)
	viper.SetDefault("S3_ENDPOINT", "localhost:9000")
	viper.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	viper.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	viper.SetDefault("S3_USE_SSL", false)
	viper.SetDefault("S3_BUCKET_NAME", "prescription-models")
	viper.SetDefault("S3_REGION", "us-east-1")

	viper.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	viper.SetDefault("APP_MAX_PIXELS", 40_000_000)
	viper.SetDefault("APP_ALLOWED_FORMATS", []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp", ".gif"})
	viper.SetDefault("APP_MODEL_DIR", "./prescription_model_final")
	viper.SetDefault("APP_DATASET_DIR", "./datasets")

	viper.SetDefault("OCR_ENGINE", "tesseract")
	viper.SetDefault("OCR_LANGUAGES", []string{"eng"})
	viper.SetDefault("OCR_THRESHOLD", 0.5)
	viper.SetDefault("OCR_REMOTE_URL", "http://localhost:5000/ocr")
	viper.SetDefault("OCR_PREPROCESS", true)
	viper.SetDefault("OCR_DPI", 300)
	viper.SetDefault("OCR_TIMEOUT", 60*time.Second)

	viper.SetDefault("MODEL_BACKEND", "http")
	viper.SetDefault("MODEL_INFERENCE_URL", "http://localhost:8080/generate")
	viper.SetDefault("MODEL_MANIFEST_PATH", "")
	viper.SetDefault("MODEL_MANIFEST_KEY", "")
	viper.SetDefault("MODEL_MAX_LENGTH", 128)
	viper.SetDefault("MODEL_TIMEOUT", 30*time.Second)
	viper.SetDefault("MODEL_FALLBACK", true)

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_TTL", 2*time.Minute)
	viper.SetDefault("CACHE_CAPACITY", 512)

	viper.SetDefault("BATCH_CONCURRENCY", 4)
	viper.SetDefault("BATCH_MAX_FILES", 20)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_STYLE", "json")
}

func Load() (*Config, error) {
	setDefaults()
	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         viper.GetString("SERVER_HOST"),
			Port:         viper.GetString("SERVER_PORT"),
			ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		S3: S3Config{
			Enabled:         viper.GetBool("S3_ENABLED"),
			Endpoint:        viper.GetString("S3_ENDPOINT"),
			AccessKeyID:     viper.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          viper.GetBool("S3_USE_SSL"),
			BucketName:      viper.GetString("S3_BUCKET_NAME"),
			Region:          viper.GetString("S3_REGION"),
		},
		App: AppConfig{
			MaxUploadSize:  viper.GetInt64("APP_MAX_UPLOAD_SIZE"),
			MaxPixels:      viper.GetInt64("APP_MAX_PIXELS"),
			AllowedFormats: viper.GetStringSlice("APP_ALLOWED_FORMATS"),
			ModelDir:       viper.GetString("APP_MODEL_DIR"),
			DatasetDir:     viper.GetString("APP_DATASET_DIR"),
		},
		OCR: OCRConfig{
			Engine:     viper.GetString("OCR_ENGINE"),
			Languages:  viper.GetStringSlice("OCR_LANGUAGES"),
			Threshold:  viper.GetFloat64("OCR_THRESHOLD"),
			RemoteURL:  viper.GetString("OCR_REMOTE_URL"),
			Preprocess: viper.GetBool("OCR_PREPROCESS"),
			DPI:        viper.GetInt("OCR_DPI"),
			Timeout:    viper.GetDuration("OCR_TIMEOUT"),
		},
		Model: ModelConfig{
			Backend:      viper.GetString("MODEL_BACKEND"),
			InferenceURL: viper.GetString("MODEL_INFERENCE_URL"),
			ManifestPath: viper.GetString("MODEL_MANIFEST_PATH"),
			ManifestKey:  viper.GetString("MODEL_MANIFEST_KEY"),
			MaxLength:    viper.GetInt("MODEL_MAX_LENGTH"),
			Timeout:      viper.GetDuration("MODEL_TIMEOUT"),
			Fallback:     viper.GetBool("MODEL_FALLBACK"),
		},
		Cache: CacheConfig{
			Enabled:  viper.GetBool("CACHE_ENABLED"),
			TTL:      viper.GetDuration("CACHE_TTL"),
			Capacity: viper.GetUint64("CACHE_CAPACITY"),
		},
		Batch: BatchConfig{
			Concurrency: viper.GetInt("BATCH_CONCURRENCY"),
			MaxFiles:    viper.GetInt("BATCH_MAX_FILES"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
			Style: viper.GetString("LOG_STYLE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := createDirs(cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.OCR.Engine {
	case "tesseract", "remote":
	default:
		return fmt.Errorf("unknown OCR engine %q", c.OCR.Engine)
	}
	switch c.Model.Backend {
	case "http", "rules":
	default:
		return fmt.Errorf("unknown model backend %q", c.Model.Backend)
	}
	if c.OCR.Threshold < 0 || c.OCR.Threshold >= 1 {
		return fmt.Errorf("OCR threshold must be in [0, 1), got %v", c.OCR.Threshold)
	}
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.Batch.Concurrency < 1 {
		c.Batch.Concurrency = 1
	}
	return nil
}

func createDirs(cfg *Config) error {
	dirs := []string{
		cfg.App.DatasetDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
