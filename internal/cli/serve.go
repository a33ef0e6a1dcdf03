package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/analysis"
	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/inference"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr/remote"
	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr/tesseract"
	"github.com/MuhaiminulSajid16/image-to-text/internal/repository"
	"github.com/MuhaiminulSajid16/image-to-text/internal/server"
	"github.com/MuhaiminulSajid16/image-to-text/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the upload server. Images are analyzed in memory and never stored.

Examples:
  # Serve on the default port with Tesseract and the model server
  image-to-text serve

  # Serve with the rule-based analyzer only
  MODEL_BACKEND=rules image-to-text serve --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "port to listen on (overrides SERVER_PORT)")
	mustBindPFlag("SERVER_PORT", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(cfg, svc, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

// buildService wires the OCR engine, the analyzer chain and the result cache.
func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.PrescriptionService, func(), error) {
	engine := newEngine(cfg)

	analyzer, modelName, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var cache *service.ResultCache
	if cfg.Cache.Enabled {
		cache = service.NewResultCache(cfg.Cache.TTL, cfg.Cache.Capacity, cfg.OCR.Timeout+cfg.Model.Timeout, log.Named("cache"))
		cleanup = cache.Close
	}

	log.Info("Pipeline configured",
		zap.String("ocr", engine.Name()),
		zap.String("model", modelName),
		zap.Bool("preprocess", cfg.OCR.Preprocess),
		zap.Float64("threshold", cfg.OCR.Threshold),
		zap.Bool("cache", cache != nil))

	return service.NewPrescriptionService(engine, analyzer, modelName, cache, cfg, log), cleanup, nil
}

func newEngine(cfg *config.Config) ocr.Engine {
	if cfg.OCR.Engine == "remote" {
		return remote.New(cfg.OCR.RemoteURL, cfg.OCR.Timeout)
	}
	return tesseract.New()
}

func newAnalyzer(ctx context.Context, cfg *config.Config, log *zap.Logger) (analysis.Analyzer, string, error) {
	rules := analysis.NewRuleAnalyzer()
	if cfg.Model.Backend == "rules" {
		return rules, "rules", nil
	}

	manifest, err := loadManifest(ctx, cfg, log)
	if err != nil {
		return nil, "", err
	}

	model := inference.NewHTTPModel(cfg.Model.InferenceURL, manifest, cfg.Model.Timeout, log.Named("inference"))
	primary := analysis.NewModelAnalyzer(model, manifest, log)
	if !cfg.Model.Fallback {
		return primary, manifest.ModelID, nil
	}
	return analysis.NewFallbackAnalyzer(primary, rules, log), manifest.ModelID, nil
}

func loadManifest(ctx context.Context, cfg *config.Config, log *zap.Logger) (inference.Manifest, error) {
	var store inference.ObjectGetter
	if cfg.S3.Enabled && cfg.Model.ManifestKey != "" {
		repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return inference.Manifest{}, fmt.Errorf("failed to create S3 repository: %w", err)
		}
		store = repo
	}

	manifest, err := inference.LoadManifest(ctx, cfg.Model.ManifestPath, cfg.Model.ManifestKey, store, cfg.Model.MaxLength)
	if err != nil {
		return inference.Manifest{}, fmt.Errorf("failed to load model manifest: %w", err)
	}

	log.Info("Model manifest loaded",
		zap.String("model_id", manifest.ModelID),
		zap.String("base_model", manifest.BaseModel),
		zap.Int("max_length", manifest.MaxLength))

	return manifest, nil
}
