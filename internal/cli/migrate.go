package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy all memories between backends",
		Long: "Copy every memory from a source store into a destination store, preserving ids, " +
			"timestamps and counters. Fails if the destination already holds any of the ids. " +
			"The source is left untouched.",
		Run: runMigrate,
	}

	cmd.Flags().String("src-backend", "jsonl", "Source backend: jsonl or sqlite")
	cmd.Flags().String("src", "", "Source store path (required)")
	cmd.Flags().String("dst-backend", "sqlite", "Destination backend: jsonl or sqlite")
	cmd.Flags().String("dst", "", "Destination store path (required)")

	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("dst")

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	srcBackend, _ := cmd.Flags().GetString("src-backend")
	srcPath, _ := cmd.Flags().GetString("src")
	dstBackend, _ := cmd.Flags().GetString("dst-backend")
	dstPath, _ := cmd.Flags().GetString("dst")

	logger := slog.Default()

	src, err := openBackend(srcBackend, srcPath, logger)
	if err != nil {
		exitErr("open source", err)
	}
	defer src.Close()

	dst, err := openBackend(dstBackend, dstPath, logger)
	if err != nil {
		exitErr("open destination", err)
	}
	defer dst.Close()

	res, err := store.Migrate(cmd.Context(), src, dst, logger)
	if err != nil {
		exitErr("migrate", err)
	}

	fmt.Printf(`{"ok":true,"migrated":%d,"skipped":%d}`+"\n", res.Migrated, res.Skipped)
}

func openBackend(kind, path string, logger *slog.Logger) (store.Backend, error) {
	switch kind {
	case "sqlite", "db":
		return store.NewSQLiteStore(path, logger)
	default:
		return store.NewJSONLStore(path, logger)
	}
}
