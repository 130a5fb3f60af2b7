package cli

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/recall"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall <prompt>",
		Short: "Rank memories relevant to a prompt",
		Long: "Score active memories against a prompt and print the selection in rank order. " +
			"Updates seen/used counters as a side effect.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRecall,
	}

	cmd.Flags().String("file", "", "Active file path for hint matching")
	cmd.Flags().String("module", "", "Active module/library for hint matching")
	cmd.Flags().String("lang", "", "Active language for hint matching")
	cmd.Flags().String("command", "", "Active command for hint matching")
	cmd.Flags().IntP("top", "n", 5, "Max records to select")
	cmd.Flags().Int("budget", 0, "Token budget for selected content (0 = unlimited)")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	prompt := strings.Join(args, " ")
	file, _ := cmd.Flags().GetString("file")
	module, _ := cmd.Flags().GetString("module")
	lang, _ := cmd.Flags().GetString("lang")
	command, _ := cmd.Flags().GetString("command")
	top, _ := cmd.Flags().GetInt("top")
	budget, _ := cmd.Flags().GetInt("budget")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	engine := recall.New(s, slog.Default())
	recs, err := engine.Recall(cmd.Context(), prompt, recall.Context{
		ActiveFile:  file,
		Module:      module,
		Language:    lang,
		Command:     command,
		TopN:        top,
		TokenBudget: budget,
	})
	if err != nil {
		exitErr("recall", err)
	}

	printJSON(recs)
}
