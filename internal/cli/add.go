package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runAdd,
	}

	cmd.Flags().StringP("scope", "s", "repo", "Scope: global, repo, dir")
	cmd.Flags().StringP("kind", "k", "note", "Kind: pref, fact, instruction, profile, note")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("files", "", "Comma-separated file path hints")
	cmd.Flags().String("modules", "", "Comma-separated module/library hints")
	cmd.Flags().String("langs", "", "Comma-separated language hints")
	cmd.Flags().String("commands", "", "Comma-separated command hints")
	cmd.Flags().String("expires", "", "Expiry: RFC3339 timestamp or TTL like 7d, 24h")
	cmd.Flags().Bool("allow-secrets", false, "Persist even when content looks like a secret")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("add", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	scope, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	filesStr, _ := cmd.Flags().GetString("files")
	modulesStr, _ := cmd.Flags().GetString("modules")
	langsStr, _ := cmd.Flags().GetString("langs")
	commandsStr, _ := cmd.Flags().GetString("commands")
	expiresStr, _ := cmd.Flags().GetString("expires")
	allowSecrets, _ := cmd.Flags().GetBool("allow-secrets")

	rec := model.Record{
		Scope:   model.Scope(scope),
		Kind:    model.Kind(kind),
		Content: content,
		Source:  "cli",
		Tags:    splitList(tagsStr),
		Hints: model.Hints{
			Files:     splitList(filesStr),
			Modules:   splitList(modulesStr),
			Languages: splitList(langsStr),
			Commands:  splitList(commandsStr),
		},
	}

	if expiresStr != "" {
		t, err := parseExpiry(expiresStr, time.Now().UTC())
		if err != nil {
			exitErr("add", err)
		}
		rec.ExpiresAt = &t
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	created, err := s.Create(cmd.Context(), store.CreateParams{
		Record:       rec,
		AllowSecrets: allowSecrets,
	})
	if err != nil {
		exitErr("add", err)
	}

	printJSON(created)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

// parseExpiry accepts an absolute RFC3339 timestamp or a TTL like "7d".
func parseExpiry(s string, now time.Time) (time.Time, error) {
	if m := ttlRegex.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2] {
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		case "s":
			unit = time.Second
		}
		return now.Add(time.Duration(n) * unit), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q (use RFC3339 or e.g. 7d, 24h)", s)
	}
	return t, nil
}
