package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/lorebook"
	"github.com/aichatlibre/memcore/internal/model"
	"github.com/aichatlibre/memcore/internal/prompt"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Assemble a system prompt",
		Long: "Assemble a system prompt from persona, character, memory, and lorebooks.\n" +
			"The character is read from a JSON file; persona likewise when given.",
		Run: runContext,
	}

	cmd.Flags().String("character", "", "Character JSON file (required)")
	cmd.Flags().StringP("chat", "c", "", "Chat ID (required)")
	cmd.Flags().String("persona", "", "Persona JSON file")
	cmd.Flags().StringP("query", "q", "", "Query for episodic retrieval")
	cmd.Flags().String("lorebooks", "", "Comma-separated lorebook IDs")
	cmd.Flags().Int("max-tokens", 0, "Global token budget (default 4000)")
	cmd.Flags().Bool("parts", false, "Print itemized parts instead of the prompt")
	cmd.MarkFlagRequired("character")
	cmd.MarkFlagRequired("chat")

	RootCmd.AddCommand(cmd)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func runContext(cmd *cobra.Command, args []string) {
	characterPath, _ := cmd.Flags().GetString("character")
	chatID, _ := cmd.Flags().GetString("chat")
	personaPath, _ := cmd.Flags().GetString("persona")
	query, _ := cmd.Flags().GetString("query")
	lorebooksStr, _ := cmd.Flags().GetString("lorebooks")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	showParts, _ := cmd.Flags().GetBool("parts")

	var character model.Character
	if err := readJSONFile(characterPath, &character); err != nil {
		exitErr("read character", err)
	}

	var persona *model.Persona
	if personaPath != "" {
		persona = &model.Persona{}
		if err := readJSONFile(personaPath, persona); err != nil {
			exitErr("read persona", err)
		}
	}

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if query != "" {
		if err := m.LoadIndex(cmd.Context(), chatID, character.ID); err != nil {
			exitErr("load index", err)
		}
	}

	var cfg *prompt.Config
	if maxTokens > 0 {
		c := prompt.DefaultConfig()
		c.MaxTokens = maxTokens
		cfg = &c
	}

	b := prompt.NewBuilder(m, lorebook.NewEngine(s))
	res, err := b.Build(cmd.Context(), prompt.Request{
		Character:   &character,
		ChatID:      chatID,
		Persona:     persona,
		Query:       query,
		LorebookIDs: splitList(lorebooksStr),
		Config:      cfg,
	})
	if err != nil {
		exitErr("build context", err)
	}

	if showParts {
		out := struct {
			Parts       []prompt.Part `json:"parts"`
			TotalTokens int           `json:"totalTokens"`
		}{res.Parts, prompt.TotalTokens(res.Parts)}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(res.SystemPrompt)
}
