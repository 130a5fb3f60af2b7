package cli

import (
	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space in the store",
		Long: "Rewrite the flat file compactly or vacuum the SQLite database. " +
			"Never changes the logical record set unless --drop-expired-archived is set.",
		Run: runCompact,
	}

	cmd.Flags().Bool("drop-expired-archived", false, "Also drop records that are archived and past expiry")

	RootCmd.AddCommand(cmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	drop, _ := cmd.Flags().GetBool("drop-expired-archived")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Compact(cmd.Context(), store.CompactPolicy{
		DropExpiredArchived: drop,
	})
	if err != nil {
		exitErr("compact", err)
	}

	printJSON(res)
}
