package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MuhaiminulSajid16/image-to-text/internal/sample"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Render a sample prescription image",
	Long: `Render a synthetic prescription scan for trying out the upload endpoint.
The format follows the output extension (.png, .jpg or .jpeg).`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	defaults := sample.DefaultOptions()
	sampleCmd.Flags().StringP("output", "o", "sample_prescription.jpg", "output file")
	sampleCmd.Flags().Float64("noise", defaults.Noise, "Gaussian noise standard deviation (0 disables)")
	sampleCmd.Flags().Uint64("seed", defaults.Seed, "noise seed")
}

func runSample(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	noise, _ := cmd.Flags().GetFloat64("noise")
	seed, _ := cmd.Flags().GetUint64("seed")

	if err := sample.WriteFile(output, sample.Options{Noise: noise, Seed: seed}); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sample prescription image created at: %s\n", output)
	return nil
}
