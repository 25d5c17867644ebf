package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/lorebook"
	"github.com/aichatlibre/memcore/internal/model"
)

func init() {
	loreCmd := &cobra.Command{
		Use:   "lore",
		Short: "Manage lorebooks and trigger entries",
	}

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a lorebook",
		Args:  cobra.ExactArgs(1),
		Run:   runLoreCreate,
	}
	createCmd.Flags().StringP("character", "c", "", "Bind to a character (empty = global)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List lorebooks",
		Run:   runLoreList,
	}
	listCmd.Flags().StringP("character", "c", "", "Filter by character")
	listCmd.Flags().Bool("global", false, "Only lorebooks without a character")

	showCmd := &cobra.Command{
		Use:   "show [lorebook-id]",
		Short: "Show a lorebook with its entries",
		Args:  cobra.ExactArgs(1),
		Run:   runLoreShow,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [lorebook-id]",
		Short: "Delete a lorebook",
		Args:  cobra.ExactArgs(1),
		Run:   runLoreDelete,
	}

	entryCmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage lorebook entries",
	}

	entryAddCmd := &cobra.Command{
		Use:   "add [lorebook-id] [content]",
		Short: "Add an entry",
		Args:  cobra.MinimumNArgs(2),
		Run:   runLoreEntryAdd,
	}
	entryAddCmd.Flags().StringP("keys", "k", "", "Comma-separated trigger keywords (required)")
	entryAddCmd.Flags().IntP("priority", "p", 0, "Injection priority, higher first")
	entryAddCmd.Flags().Bool("disabled", false, "Create the entry disabled")
	entryAddCmd.MarkFlagRequired("keys")

	entryRmCmd := &cobra.Command{
		Use:   "rm [lorebook-id] [entry-id]",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(2),
		Run:   runLoreEntryRm,
	}

	entryToggleCmd := &cobra.Command{
		Use:   "toggle [lorebook-id] [entry-id]",
		Short: "Enable or disable an entry",
		Args:  cobra.ExactArgs(2),
		Run:   runLoreEntryToggle,
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger [text]",
		Short: "Show which entries the text would trigger",
		Args:  cobra.MinimumNArgs(1),
		Run:   runLoreTrigger,
	}
	triggerCmd.Flags().StringP("lorebooks", "b", "", "Comma-separated lorebook IDs (required)")
	triggerCmd.Flags().Bool("whole-word", false, "Match whole words only")
	triggerCmd.Flags().Bool("case-sensitive", false, "Case-sensitive matching")
	triggerCmd.Flags().Bool("recursive", false, "Re-trigger on matched entry content")
	triggerCmd.Flags().Int("max-tokens", 0, "Render the [World Info] block under this budget")
	triggerCmd.MarkFlagRequired("lorebooks")

	entryCmd.AddCommand(entryAddCmd, entryRmCmd, entryToggleCmd)
	loreCmd.AddCommand(createCmd, listCmd, showCmd, deleteCmd, entryCmd, triggerCmd)
	RootCmd.AddCommand(loreCmd)
}

func runLoreCreate(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")

	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	lb, err := e.CreateLorebook(cmd.Context(), &model.Lorebook{
		Name:        args[0],
		CharacterID: characterID,
	})
	if err != nil {
		exitErr("lore create", err)
	}
	b, _ := json.Marshal(lb)
	fmt.Println(string(b))
}

func runLoreList(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	globalOnly, _ := cmd.Flags().GetBool("global")

	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var books []model.Lorebook
	switch {
	case globalOnly:
		books, err = e.GlobalLorebooks(cmd.Context())
	case characterID != "":
		books, err = e.LorebooksByCharacter(cmd.Context(), characterID)
	default:
		books, err = e.Lorebooks(cmd.Context())
	}
	if err != nil {
		exitErr("lore list", err)
	}
	if len(books) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(books, "", "  ")
	fmt.Println(string(b))
}

func runLoreShow(cmd *cobra.Command, args []string) {
	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	lb, err := e.Lorebook(cmd.Context(), args[0])
	if err != nil {
		exitErr("lore show", err)
	}
	b, _ := json.MarshalIndent(lb, "", "  ")
	fmt.Println(string(b))
}

func runLoreDelete(cmd *cobra.Command, args []string) {
	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := e.DeleteLorebook(cmd.Context(), args[0]); err != nil {
		exitErr("lore delete", err)
	}
	fmt.Println(`{"ok":true}`)
}

func runLoreEntryAdd(cmd *cobra.Command, args []string) {
	keysStr, _ := cmd.Flags().GetString("keys")
	priority, _ := cmd.Flags().GetInt("priority")
	disabled, _ := cmd.Flags().GetBool("disabled")

	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entry, err := e.AddEntry(cmd.Context(), args[0], model.LorebookEntry{
		Keys:     splitList(keysStr),
		Content:  strings.Join(args[1:], " "),
		Enabled:  !disabled,
		Priority: priority,
	})
	if err != nil {
		exitErr("lore entry add", err)
	}
	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}

func runLoreEntryRm(cmd *cobra.Command, args []string) {
	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := e.DeleteEntry(cmd.Context(), args[0], args[1]); err != nil {
		exitErr("lore entry rm", err)
	}
	fmt.Println(`{"ok":true}`)
}

func runLoreEntryToggle(cmd *cobra.Command, args []string) {
	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	enabled, err := e.ToggleEntry(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("lore entry toggle", err)
	}
	fmt.Printf(`{"ok":true,"enabled":%t}`+"\n", enabled)
}

func runLoreTrigger(cmd *cobra.Command, args []string) {
	lorebooksStr, _ := cmd.Flags().GetString("lorebooks")
	wholeWord, _ := cmd.Flags().GetBool("whole-word")
	caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
	recursive, _ := cmd.Flags().GetBool("recursive")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	e, s, err := openEngine()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	text := strings.Join(args, " ")
	ids := splitList(lorebooksStr)
	opts := lorebook.MatchOptions{WholeWord: wholeWord, CaseSensitive: caseSensitive}

	var entries []model.LorebookEntry
	if recursive {
		entries, err = e.RecursiveTrigger(cmd.Context(), text, ids, opts, 0)
	} else {
		entries, err = e.TriggerEntries(cmd.Context(), text, ids, opts)
	}
	if err != nil {
		exitErr("lore trigger", err)
	}

	if maxTokens > 0 {
		fmt.Println(lorebook.BuildContext(entries, maxTokens))
		return
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}
