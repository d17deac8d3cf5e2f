// Package main provides the laborcond command: the form server and the
// command-line predictions over the same model artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debugLog  bool
	jsonLog   bool
	modelsDir string
)

var rootCmd = &cobra.Command{
	Use:   "laborcond",
	Short: "Benefit eligibility and disability wage gap predictions",
	Long: `laborcond serves the benefit classifier and wage comparison forms and runs
the same pre-trained models from the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is laborcond.yaml in current directory)")
	rootCmd.PersistentFlags().BoolVarP(&debugLog, "debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&jsonLog, "json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models-dir", "", "directory holding the model artifacts (overrides models.dir)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
