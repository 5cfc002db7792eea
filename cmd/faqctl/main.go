// faqctl maintains the seeded FAQ answer snapshot offline: pre-generating
// answers, backfilling audio, and verifying snapshot integrity.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "faqctl",
		Short:   "Maintain the FAQ answer snapshot",
		Version: version,
	}

	root.AddCommand(
		newWarmCmd(),
		newAudioCmd(),
		newVerifyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
