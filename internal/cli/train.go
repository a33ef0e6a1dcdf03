package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/repository"
	"github.com/MuhaiminulSajid16/image-to-text/internal/training"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Prepare a fine-tuning dataset and job for the prescription model",
	Long: `Split the seed examples, plus any examples from --data, into train and test
sets and write train.jsonl, test.jsonl, job.json and manifest.json for the
external FLAN-T5 trainer.

Examples:
  # Prepare the seed dataset locally
  image-to-text train

  # Add examples and publish to S3 under datasets/<id>/ and datasets/latest/
  image-to-text train --data extra.jsonl --upload`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	defaults := training.DefaultOptions()
	trainCmd.Flags().String("data", "", "JSON Lines file with extra examples")
	trainCmd.Flags().Float64("test-size", defaults.TestSize, "fraction of examples held out for evaluation")
	trainCmd.Flags().Uint64("seed", defaults.Seed, "shuffle seed")
	trainCmd.Flags().String("base-model", defaults.BaseModel, "checkpoint to fine-tune")
	trainCmd.Flags().Int("epochs", defaults.Epochs, "training epochs")
	trainCmd.Flags().Int("batch-size", defaults.BatchSize, "per-device batch size")
	trainCmd.Flags().Int("warmup-steps", defaults.WarmupSteps, "learning rate warmup steps")
	trainCmd.Flags().Float64("weight-decay", defaults.WeightDecay, "weight decay")
	trainCmd.Flags().String("output-dir", defaults.OutputDir, "trainer output directory")
	trainCmd.Flags().Bool("upload", false, "publish the dataset to S3")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	flags := cmd.Flags()
	opts := training.DefaultOptions()
	opts.DatasetDir = cfg.App.DatasetDir
	opts.FinalDir = cfg.App.ModelDir
	opts.MaxLength = cfg.Model.MaxLength
	opts.TestSize, _ = flags.GetFloat64("test-size")
	opts.Seed, _ = flags.GetUint64("seed")
	opts.BaseModel, _ = flags.GetString("base-model")
	opts.Epochs, _ = flags.GetInt("epochs")
	opts.BatchSize, _ = flags.GetInt("batch-size")
	opts.WarmupSteps, _ = flags.GetInt("warmup-steps")
	opts.WeightDecay, _ = flags.GetFloat64("weight-decay")
	opts.OutputDir, _ = flags.GetString("output-dir")

	examples := training.SeedExamples()
	if dataPath, _ := flags.GetString("data"); dataPath != "" {
		f, err := os.Open(dataPath)
		if err != nil {
			return fmt.Errorf("open examples: %w", err)
		}
		extra, err := training.ReadExamples(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read examples from %s: %w", dataPath, err)
		}
		examples = append(examples, extra...)
		log.Info("Loaded extra examples", zap.String("file", dataPath), zap.Int("count", len(extra)))
	}

	ds, err := training.Prepare(examples, opts, log)
	if err != nil {
		return fmt.Errorf("prepare dataset: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dataset %s written to %s\n", ds.ID, ds.Dir)

	if upload, _ := flags.GetBool("upload"); !upload {
		return nil
	}
	if !cfg.S3.Enabled {
		return fmt.Errorf("--upload requires S3_ENABLED=true")
	}

	ctx := cmd.Context()
	repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
	if err != nil {
		return fmt.Errorf("failed to create S3 repository: %w", err)
	}
	if err := repo.EnsureBucket(ctx); err != nil {
		return err
	}

	keys, err := training.Publish(ctx, repo, ds, log)
	if err != nil {
		return fmt.Errorf("publish dataset: %w", err)
	}
	for _, key := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  s3://%s/%s\n", cfg.S3.BucketName, key)
	}
	return nil
}
