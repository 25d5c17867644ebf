package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/index"
	"github.com/aichatlibre/memcore/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over indexed memories",
		Long: "Embed the query and search the vector index. Requires an embedding\n" +
			"provider ($MEMCORE_EMBED_PROVIDER, $OPENAI_API_KEY); without one the\n" +
			"result is always empty. The index is rebuilt from the store first.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().StringP("chat", "c", "", "Restrict to a chat")
	cmd.Flags().String("character", "", "Restrict to a character")
	cmd.Flags().String("type", "", "Restrict to a memory type: episodic or semantic")
	cmd.Flags().IntP("top-k", "k", 5, "Max results")
	cmd.Flags().Float64P("threshold", "t", 0.5, "Minimum similarity score")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	chatID, _ := cmd.Flags().GetString("chat")
	characterID, _ := cmd.Flags().GetString("character")
	typeStr, _ := cmd.Flags().GetString("type")
	topK, _ := cmd.Flags().GetInt("top-k")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	var kinds []index.Kind
	switch typeStr {
	case "":
	case "episodic":
		kinds = []index.Kind{index.KindEpisodic}
	case "semantic":
		kinds = []index.Kind{index.KindSemantic}
	default:
		exitErr("search", fmt.Errorf("unknown memory type %q", typeStr))
	}

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	// The index lives in memory only; rebuild it for this process.
	if err := m.LoadIndex(cmd.Context(), chatID, characterID); err != nil {
		exitErr("load index", err)
	}

	hits, err := m.SearchRelevantMemories(cmd.Context(), strings.Join(args, " "), memory.SearchOptions{
		ChatID:      chatID,
		CharacterID: characterID,
		Kinds:       kinds,
		TopK:        topK,
		Threshold:   threshold,
	})
	if err != nil {
		exitErr("search", err)
	}
	if len(hits) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(b))
}
