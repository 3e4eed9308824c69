package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	backendURL string
	backendKey string
	logLevel   string
	logFile    string

	rootCmd = &cobra.Command{
		Use:   "runwatch",
		Short: "Watch and steer multi-stage workflow runs",
		Long: `runwatch follows workflow runs on an orchestration backend.
It reconciles each run's raw stage log into an ordered snapshot, shows it
live in the terminal, and can export or copy stage output, terminate a run,
or retry a stage. "runwatch serve" exposes the same view over HTTP.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $CONFIG_FILE, then environment)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "orchestration backend url (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backendKey, "api-key", "", "backend api key (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs here instead of discarding them")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
