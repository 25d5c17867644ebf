package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/memory"
)

func init() {
	semanticCmd := &cobra.Command{
		Use:   "semantic",
		Short: "Manage semantic memory (per-character facts)",
	}

	addCmd := &cobra.Command{
		Use:   "add [fact]",
		Short: "Record a fact about a character",
		Run:   runSemanticAdd,
	}
	addCmd.Flags().StringP("character", "c", "", "Character ID (required)")
	addCmd.Flags().String("category", "", "Fact category")
	addCmd.Flags().Float64P("confidence", "C", 0.8, "Confidence 0-1")
	addCmd.Flags().String("source", "", "Where the fact came from")
	addCmd.MarkFlagRequired("character")

	listCmd := &cobra.Command{
		Use:   "list [character-id]",
		Short: "List a character's facts",
		Args:  cobra.ExactArgs(1),
		Run:   runSemanticList,
	}
	listCmd.Flags().String("category", "", "Filter by category")

	semanticCmd.AddCommand(addCmd, listCmd)
	RootCmd.AddCommand(semanticCmd)
}

func runSemanticAdd(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	category, _ := cmd.Flags().GetString("category")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	source, _ := cmd.Flags().GetString("source")

	fact := strings.TrimSpace(stdinOrArgs(args))
	if fact == "" {
		exitErr("semantic add", fmt.Errorf("fact text is required (positional arg or stdin)"))
	}

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var confPtr *float64
	if cmd.Flags().Changed("confidence") {
		confPtr = &confidence
	}

	mem, err := m.AddSemanticMemory(cmd.Context(), memory.SemanticParams{
		CharacterID: characterID,
		Fact:        fact,
		Category:    category,
		Confidence:  confPtr,
		Source:      source,
	})
	if err != nil {
		exitErr("semantic add", err)
	}
	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}

func runSemanticList(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mems, err := m.SemanticMemories(cmd.Context(), args[0], category)
	if err != nil {
		exitErr("semantic list", err)
	}
	if len(mems) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(mems, "", "  ")
	fmt.Println(string(b))
}
