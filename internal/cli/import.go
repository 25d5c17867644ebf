package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON backup",
		Long:  "Import a backup produced by export, read from stdin. The payload is validated in full before anything is written.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	backup, err := store.ParseBackup(data)
	if err != nil {
		exitErr("parse backup", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	counts, err := store.Import(cmd.Context(), s, backup)
	if err != nil {
		exitErr("import", err)
	}

	b, _ := json.Marshal(struct {
		OK       bool                `json:"ok"`
		Imported *store.ImportCounts `json:"imported"`
	}{true, counts})
	fmt.Println(string(b))
}
