package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MuhaiminulSajid16/image-to-text/internal/repository"
	"github.com/MuhaiminulSajid16/image-to-text/internal/training"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List fine-tuning datasets published to S3",
	RunE:  runDatasets,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

func runDatasets(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if !cfg.S3.Enabled {
		return fmt.Errorf("listing datasets requires S3_ENABLED=true")
	}

	ctx := cmd.Context()
	repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
	if err != nil {
		return fmt.Errorf("failed to create S3 repository: %w", err)
	}

	ids, err := training.PublishedDatasets(ctx, repo)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No datasets in s3://%s\n", cfg.S3.BucketName)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
