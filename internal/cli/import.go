package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import memories from JSON lines",
		Long:  "Import newline-delimited JSON memories (stdin or --in). Ids, timestamps and counters are preserved.",
		Run:   runImport,
	}

	cmd.Flags().StringP("in", "i", "", "Read from a file instead of stdin")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	in, _ := cmd.Flags().GetString("in")

	var r io.Reader = os.Stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			exitErr("import", err)
		}
		defer f.Close()
		r = f
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.ImportLines(cmd.Context(), r)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", n)
}
