package cli

import (
	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

func init() {
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a memory (excluded from recall, kept for history)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setStatus(cmd, args[0], model.StatusArchived)
		},
	}
	unarchive := &cobra.Command{
		Use:   "unarchive <id>",
		Short: "Restore an archived memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setStatus(cmd, args[0], model.StatusActive)
		},
	}

	RootCmd.AddCommand(archive, unarchive)
}

func setStatus(cmd *cobra.Command, id string, status model.Status) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Update(cmd.Context(), id, store.Mutation{Status: &status})
	if err != nil {
		exitErr(string(status), err)
	}

	printJSON(rec)
}
