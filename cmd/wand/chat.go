package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/pipeline"
)

var (
	chatFiles  []string
	chatModel  string
	chatRender bool
	chatWidth  int
)

var chatCmd = &cobra.Command{
	Use:   "chat QUERY",
	Short: "Answer a query using the relevant workspace files",
	Long: `Select the files relevant to QUERY, then run the agent with their contents
as context. The agent may read, search and edit files and run commands in the
workspace until it answers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringSliceVarP(&chatFiles, "file", "f", nil, "Consider only these files (repeatable)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to answer with (default: routed by file type)")
	chatCmd.Flags().BoolVar(&chatRender, "render", false, "Render the answer as markdown when it is complete")
	chatCmd.Flags().IntVar(&chatWidth, "width", 100, "Word wrap width for --render")
}

func runChat(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(chatFiles)
	if err != nil {
		return err
	}
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.client.Close()

	req := pipeline.ChatRequest{
		WorkspacePath: root,
		Query:         strings.Join(args, " "),
		Files:         chatFiles,
		Model:         chatModel,
	}
	p := &printer{w: cmd.OutOrStdout(), json: jsonOutput, render: chatRender, width: chatWidth}
	return p.print(a.asst.Chat(cmd.Context(), req))
}
