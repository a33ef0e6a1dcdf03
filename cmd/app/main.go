// Command image-to-text serves the prescription upload API and prepares
// fine-tuning datasets for the prescription model.
//
// Usage:
//
//	image-to-text serve      # Start the server
//	image-to-text train      # Prepare a fine-tuning dataset
//	image-to-text sample     # Render a sample prescription image
//	image-to-text datasets   # List published datasets
//	image-to-text doctor     # Check external dependencies
package main

import "github.com/MuhaiminulSajid16/image-to-text/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
