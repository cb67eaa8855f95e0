package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medscan/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "medscan",
	Short: "MedScan CLI - identify medications from package photos",
	Long: `MedScan reads a photo of a medication package, extracts the printed
text with OCR, and matches it against a brand→generic medication dictionary
using exact, pattern-based and classifier-based detection.

Results can be printed, spoken aloud, and saved to the medication database.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("MedScan CLI")
		fmt.Println("Use --help to see available commands and options.")
	},
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
