package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/inference"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
	"github.com/MuhaiminulSajid16/image-to-text/internal/repository"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external dependencies",
	Long: `Check that the OCR engine, the model server and the object store the
current configuration needs are reachable. Exits non-zero when a required
dependency is missing.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().Duration("timeout", 5*time.Second, "timeout per check")
}

type check struct {
	name     string
	required bool
	run      func(ctx context.Context) error
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	return runChecks(cmd.Context(), cmd.OutOrStdout(), doctorChecks(cfg, log), timeout)
}

func doctorChecks(cfg *config.Config, log *zap.Logger) []check {
	var checks []check

	engine := newEngine(cfg)
	name := "tesseract binary"
	if cfg.OCR.Engine == "remote" {
		name = "remote OCR " + cfg.OCR.RemoteURL
	}
	if hc, ok := engine.(ocr.HealthChecker); ok {
		checks = append(checks, check{name: name, required: true, run: hc.CheckHealth})
	}

	if cfg.Model.Backend == "http" {
		model := inference.NewHTTPModel(cfg.Model.InferenceURL, inference.DefaultManifest(), cfg.Model.Timeout, log)
		checks = append(checks, check{
			name:     "model server " + cfg.Model.InferenceURL,
			required: !cfg.Model.Fallback,
			run:      model.CheckHealth,
		})
	}

	if cfg.S3.Enabled {
		checks = append(checks, check{
			name:     "S3 bucket " + cfg.S3.BucketName,
			required: cfg.Model.ManifestKey != "",
			run: func(ctx context.Context) error {
				repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
				if err != nil {
					return err
				}
				return repo.Ping(ctx)
			},
		})
	}

	return checks
}

func runChecks(ctx context.Context, w io.Writer, checks []check, timeout time.Duration) error {
	failed := 0
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.run(checkCtx)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(w, "ok    %s\n", c.name)
		case c.required:
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", c.name, err)
		default:
			fmt.Fprintf(w, "warn  %s: %v\n", c.name, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d required dependency check(s) failed", failed)
	}
	fmt.Fprintln(w, "All required dependencies are available.")
	return nil
}
