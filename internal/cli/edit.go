package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a memory",
		Long:  "Edit a memory's content, kind, tags, hints or expiry. Unset flags leave fields unchanged.",
		Args:  cobra.ExactArgs(1),
		Run:   runEdit,
	}

	cmd.Flags().StringP("content", "c", "", "New content")
	cmd.Flags().StringP("kind", "k", "", "New kind")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated)")
	cmd.Flags().String("files", "", "Replace file path hints")
	cmd.Flags().String("modules", "", "Replace module hints")
	cmd.Flags().String("langs", "", "Replace language hints")
	cmd.Flags().String("commands", "", "Replace command hints")
	cmd.Flags().String("expires", "", "New expiry (RFC3339 or TTL like 7d)")
	cmd.Flags().Bool("clear-expiry", false, "Remove the expiry")

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	var mut store.Mutation

	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		mut.Content = &v
	}
	if cmd.Flags().Changed("kind") {
		v, _ := cmd.Flags().GetString("kind")
		k := model.Kind(v)
		mut.Kind = &k
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		tags := splitList(v)
		mut.Tags = &tags
	}
	if cmd.Flags().Changed("files") || cmd.Flags().Changed("modules") ||
		cmd.Flags().Changed("langs") || cmd.Flags().Changed("commands") {
		files, _ := cmd.Flags().GetString("files")
		modules, _ := cmd.Flags().GetString("modules")
		langs, _ := cmd.Flags().GetString("langs")
		commands, _ := cmd.Flags().GetString("commands")
		mut.Hints = &model.Hints{
			Files:     splitList(files),
			Modules:   splitList(modules),
			Languages: splitList(langs),
			Commands:  splitList(commands),
		}
	}
	if cmd.Flags().Changed("expires") {
		v, _ := cmd.Flags().GetString("expires")
		t, err := parseExpiry(v, time.Now().UTC())
		if err != nil {
			exitErr("edit", err)
		}
		mut.ExpiresAt = &t
	}
	mut.ClearExpiry, _ = cmd.Flags().GetBool("clear-expiry")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Update(cmd.Context(), args[0], mut)
	if err != nil {
		exitErr("edit", err)
	}

	printJSON(rec)
}
