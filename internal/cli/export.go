package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all memories and lorebooks as JSON",
		Long:  "Export every collection as a versioned JSON backup on stdout.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	backup, err := store.Export(cmd.Context(), s)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(backup, "", "  ")
	fmt.Println(string(b))
}
