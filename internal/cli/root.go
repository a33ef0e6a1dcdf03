// Package cli holds the image-to-text commands.
//
// Usage:
//
//	image-to-text serve                  # Start the HTTP server
//	image-to-text train --upload         # Prepare and publish a fine-tuning dataset
//	image-to-text sample -o rx.jpg       # Render a sample prescription
//	image-to-text datasets               # List published datasets
//	image-to-text doctor                 # Check external dependencies
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "image-to-text",
	Short: "Read medical prescriptions from images",
	Long: `image-to-text extracts the text of a photographed or scanned prescription
and turns it into medication, dosage, frequency and duration.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, toml or .env)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	mustBindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Style: cfg.Log.Style})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
