package training

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/inference"
)

const (
	TrainFile    = "train.jsonl"
	TestFile     = "test.jsonl"
	JobFile      = "job.json"
	ManifestFile = "manifest.json"

	datasetPrefix = "datasets/"
	latestPrefix  = "datasets/latest/"
)

type Options struct {
	DatasetDir  string
	OutputDir   string
	FinalDir    string
	BaseModel   string
	TestSize    float64
	Seed        uint64
	Epochs      int
	BatchSize   int
	WarmupSteps int
	WeightDecay float64
	MaxLength   int
}

func DefaultOptions() Options {
	return Options{
		DatasetDir:  "./datasets",
		OutputDir:   "./prescription_model",
		FinalDir:    "./prescription_model_final",
		BaseModel:   inference.DefaultBaseModel,
		TestSize:    0.2,
		Seed:        42,
		Epochs:      5,
		BatchSize:   8,
		WarmupSteps: 500,
		WeightDecay: 0.01,
		MaxLength:   inference.DefaultMaxLength,
	}
}

// Job is the fine-tuning job description handed to the external trainer.
type Job struct {
	DatasetID          string    `json:"dataset_id"`
	BaseModel          string    `json:"base_model"`
	TrainFile          string    `json:"train_file"`
	TestFile           string    `json:"test_file"`
	OutputDir          string    `json:"output_dir"`
	FinalDir           string    `json:"final_dir"`
	Epochs             int       `json:"num_train_epochs"`
	TrainBatchSize     int       `json:"per_device_train_batch_size"`
	EvalBatchSize      int       `json:"per_device_eval_batch_size"`
	WarmupSteps        int       `json:"warmup_steps"`
	WeightDecay        float64   `json:"weight_decay"`
	MaxLength          int       `json:"max_length"`
	LoggingSteps       int       `json:"logging_steps"`
	SaveStrategy       string    `json:"save_strategy"`
	EvalStrategy       string    `json:"evaluation_strategy"`
	LoadBestModelAtEnd bool      `json:"load_best_model_at_end"`
	TrainExamples      int       `json:"train_examples"`
	TestExamples       int       `json:"test_examples"`
	CreatedAt          time.Time `json:"created_at"`
}

// Dataset is a prepared dataset directory.
type Dataset struct {
	ID    string
	Dir   string
	Files []string
	Job   Job
}

// Prepare splits examples and writes train.jsonl, test.jsonl, job.json and
// manifest.json into a new directory under opts.DatasetDir.
func Prepare(examples []Example, opts Options, log *zap.Logger) (*Dataset, error) {
	train, test, err := Split(examples, opts.TestSize, opts.Seed)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	dir := filepath.Join(opts.DatasetDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	manifest := inference.DefaultManifest()
	manifest.BaseModel = opts.BaseModel
	manifest.MaxLength = opts.MaxLength

	if err := writeFile(filepath.Join(dir, TrainFile), func(w io.Writer) error {
		return writeRecords(w, train, manifest.Prompt)
	}); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, TestFile), func(w io.Writer) error {
		return writeRecords(w, test, manifest.Prompt)
	}); err != nil {
		return nil, err
	}

	job := Job{
		DatasetID:          id,
		BaseModel:          opts.BaseModel,
		TrainFile:          TrainFile,
		TestFile:           TestFile,
		OutputDir:          opts.OutputDir,
		FinalDir:           finalDir(opts),
		Epochs:             opts.Epochs,
		TrainBatchSize:     opts.BatchSize,
		EvalBatchSize:      opts.BatchSize,
		WarmupSteps:        opts.WarmupSteps,
		WeightDecay:        opts.WeightDecay,
		MaxLength:          opts.MaxLength,
		LoggingSteps:       100,
		SaveStrategy:       "epoch",
		EvalStrategy:       "epoch",
		LoadBestModelAtEnd: true,
		TrainExamples:      len(train),
		TestExamples:       len(test),
		CreatedAt:          time.Now().UTC(),
	}
	if err := writeFile(filepath.Join(dir, JobFile), func(w io.Writer) error {
		data, err := sonic.ConfigStd.MarshalIndent(job, "", "  ")
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}); err != nil {
		return nil, err
	}

	if err := writeFile(filepath.Join(dir, ManifestFile), func(w io.Writer) error {
		return inference.EncodeManifest(w, manifest)
	}); err != nil {
		return nil, err
	}

	log.Info("Dataset prepared",
		zap.String("id", id),
		zap.String("dir", dir),
		zap.Int("train", len(train)),
		zap.Int("test", len(test)))

	return &Dataset{
		ID:    id,
		Dir:   dir,
		Files: []string{TrainFile, TestFile, JobFile, ManifestFile},
		Job:   job,
	}, nil
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(name), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	return f.Close()
}

// Store is the subset of the object store used for publishing.
type Store interface {
	UploadFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	CopyFile(ctx context.Context, sourceKey, destKey string) error
}

// Lister lists object keys under a prefix.
type Lister interface {
	ListFiles(ctx context.Context, prefix string) ([]string, error)
}

// PublishedDatasets returns the sorted IDs of datasets published under
// datasets/, without the latest alias.
func PublishedDatasets(ctx context.Context, lister Lister) ([]string, error) {
	keys, err := lister.ListFiles(ctx, datasetPrefix)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var ids []string
	for _, key := range keys {
		id, _, ok := strings.Cut(strings.TrimPrefix(key, datasetPrefix), "/")
		if !ok || id == "" || datasetPrefix+id+"/" == latestPrefix {
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Publish uploads every dataset file under datasets/<id>/ and then points
// datasets/latest/ at them. It returns the uploaded keys.
func Publish(ctx context.Context, store Store, ds *Dataset, log *zap.Logger) ([]string, error) {
	keys := make([]string, 0, len(ds.Files))
	for _, name := range ds.Files {
		data, err := os.ReadFile(filepath.Join(ds.Dir, name))
		if err != nil {
			return keys, fmt.Errorf("read %s: %w", name, err)
		}
		key := path.Join(datasetPrefix, ds.ID, name)
		if err := store.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), contentType(name)); err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}

	for i, name := range ds.Files {
		if err := store.CopyFile(ctx, keys[i], latestPrefix+name); err != nil {
			return keys, fmt.Errorf("copy %s to latest: %w", name, err)
		}
	}

	log.Info("Dataset published",
		zap.String("id", ds.ID),
		zap.Int("files", len(keys)))

	return keys, nil
}

func contentType(name string) string {
	if filepath.Ext(name) == ".jsonl" {
		return "application/x-ndjson"
	}
	return "application/json"
}

func finalDir(opts Options) string {
	if opts.FinalDir != "" {
		return opts.FinalDir
	}
	return opts.OutputDir + "_final"
}
