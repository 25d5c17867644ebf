package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	workingCmd := &cobra.Command{
		Use:   "working",
		Short: "Manage working memory (one summary per chat)",
	}

	getCmd := &cobra.Command{
		Use:   "get [chat-id]",
		Short: "Show a chat's working memory",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkingGet,
	}

	setCmd := &cobra.Command{
		Use:   "set [chat-id] [summary]",
		Short: "Overwrite a chat's working memory",
		Args:  cobra.MinimumNArgs(2),
		Run:   runWorkingSet,
	}
	setCmd.Flags().StringP("key-points", "k", "", "Comma-separated key points")

	workingCmd.AddCommand(getCmd, setCmd)
	RootCmd.AddCommand(workingCmd)
}

func runWorkingGet(cmd *cobra.Command, args []string) {
	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	wm, err := m.WorkingMemory(cmd.Context(), args[0])
	if err != nil {
		exitErr("get working memory", err)
	}
	if wm == nil {
		fmt.Println("null")
		return
	}
	b, _ := json.MarshalIndent(wm, "", "  ")
	fmt.Println(string(b))
}

func runWorkingSet(cmd *cobra.Command, args []string) {
	keyPointsStr, _ := cmd.Flags().GetString("key-points")
	var keyPoints []string
	if keyPointsStr != "" {
		for _, p := range strings.Split(keyPointsStr, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				keyPoints = append(keyPoints, p)
			}
		}
	}

	m, s, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	wm, err := m.UpdateWorkingMemory(cmd.Context(), args[0], strings.Join(args[1:], " "), keyPoints)
	if err != nil {
		exitErr("set working memory", err)
	}
	b, _ := json.Marshal(wm)
	fmt.Println(string(b))
}
