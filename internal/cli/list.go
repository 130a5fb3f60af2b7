package cli

import (
	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runList,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().String("status", "", "Filter by status: active, archived")
	cmd.Flags().StringP("kind", "k", "", "Filter by kind")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, all must match)")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	status, _ := cmd.Flags().GetString("status")
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	recs, err := s.List(cmd.Context(), store.Filter{
		Scope:  model.Scope(scope),
		Status: model.Status(status),
		Kind:   model.Kind(kind),
		Tags:   splitList(tagsStr),
	})
	if err != nil {
		exitErr("list", err)
	}

	printJSON(recs)
}
