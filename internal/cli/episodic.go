package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aichatlibre/memcore/internal/memory"
)

func init() {
	episodicCmd := &cobra.Command{
		Use:   "episodic",
		Short: "Manage episodic memory (append-only chat events)",
	}

	addCmd := &cobra.Command{
		Use:   "add [event]",
		Short: "Record an event",
		Long:  "Record an event. Event text can be a positional arg or piped via stdin.",
		Run:   runEpisodicAdd,
	}
	addCmd.Flags().StringP("chat", "c", "", "Chat ID (required)")
	addCmd.Flags().StringP("participants", "p", "", "Comma-separated participants")
	addCmd.Flags().StringP("emotion", "e", "", "Emotion label")
	addCmd.Flags().IntP("importance", "i", 0, "Importance 1-10 (default 5)")
	addCmd.MarkFlagRequired("chat")

	listCmd := &cobra.Command{
		Use:   "list [chat-id]",
		Short: "List a chat's events, most important first",
		Args:  cobra.ExactArgs(1),
		Run:   runEpisodicList,
	}
	listCmd.Flags().IntP("limit", "l", 20, "Max results")

	episodicCmd.AddCommand(addCmd, listCmd)
	RootCmd.AddCommand(episodicCmd)
}

func stdinOrArgs(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runEpisodicAdd(cmd *cobra.Command, args []string) {
	chatID, _ := cmd.Flags().GetString("chat")
	participantsStr, _ := cmd.Flags().GetString("participants")
	emotion, _ := cmd.Flags().GetString("emotion")
	importance, _ := cmd.Flags().GetInt("importance")

	event := strings.TrimSpace(stdinOrArgs(args))
	if event == "" {
		exitErr("episodic add", fmt.Errorf("event text is required (positional arg or stdin)"))
	}

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := m.AddEpisodicMemory(cmd.Context(), memory.EpisodicParams{
		ChatID:       chatID,
		Event:        event,
		Participants: splitList(participantsStr),
		Emotion:      emotion,
		Importance:   importance,
	})
	if err != nil {
		exitErr("episodic add", err)
	}
	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}

func runEpisodicList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mems, err := m.EpisodicMemories(cmd.Context(), args[0], limit)
	if err != nil {
		exitErr("episodic list", err)
	}
	if len(mems) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(mems, "", "  ")
	fmt.Println(string(b))
}
