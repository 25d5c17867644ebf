// Package cli implements the memcore CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/embedding"
	"github.com/aichatlibre/memcore/internal/lorebook"
	"github.com/aichatlibre/memcore/internal/memory"
	"github.com/aichatlibre/memcore/internal/store"
)

var (
	dbPath  string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memcore",
	Short: "Layered memory and context assembly for character chat",
	Long: "Local memory engine for AI character chat: working/episodic/semantic memory,\n" +
		"embedding-backed retrieval, keyword-triggered lorebooks, and token-budgeted\n" +
		"context assembly. SQLite-backed, single binary.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMCORE_DB or ~/.memcore/memory.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MEMCORE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memcore", "memory.db")
}

func openStore() (*store.SQLite, error) {
	return store.NewSQLite(getDBPath())
}

// newEmbedder builds the env-configured embedder behind an LRU cache,
// or nil when no embedding provider is configured.
func newEmbedder() embedding.Embedder {
	inner := embedding.NewFromEnv()
	if inner == nil {
		return nil
	}
	cached, err := embedding.NewCached(inner, 1024)
	if err != nil {
		return inner
	}
	return cached
}

func openManager() (*memory.Manager, *store.SQLite, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	opts := []memory.Option{}
	if e := newEmbedder(); e != nil {
		opts = append(opts, memory.WithEmbedder(e))
	}
	return memory.New(s, opts...), s, nil
}

func openEngine() (*lorebook.Engine, *store.SQLite, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return lorebook.NewEngine(s), s, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
