// Package cli implements the membank CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/config"
	"github.com/tobyv/membank/internal/store"
)

var (
	backendFlag string
	pathFlag    string
	homeFlag    bool
	verboseFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "membank",
	Short: "Per-project memory for coding assistants",
	Long: "membank stores short natural-language memories per project and " +
		"recalls the most relevant ones for a prompt. Flat-file or SQLite backed.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: level})))
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Backend: jsonl or sqlite (default: $MEMBANK_BACKEND or jsonl)")
	RootCmd.PersistentFlags().StringVar(&pathFlag, "path", "", "Explicit store file path")
	RootCmd.PersistentFlags().BoolVar(&homeFlag, "home", false, "Use the home-scoped store instead of the current repo's")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.Backend = config.ParseBackend(backendFlag)
	}
	return cfg, nil
}

func openStore() (store.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	if pathFlag != "" {
		return cfg.OpenPath(pathFlag, logger)
	}
	if homeFlag {
		return cfg.OpenHomeStore(logger)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return cfg.OpenRepoStore(cwd, logger)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
