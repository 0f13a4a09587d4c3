package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/pipeline"
)

var selectFiles []string

var selectCmd = &cobra.Command{
	Use:   "select QUERY",
	Short: "Pick the workspace files relevant to a query",
	Long: `Update the workspace index, then ask the fast model which files are relevant
to QUERY. With --file, only the given files are considered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringSliceVarP(&selectFiles, "file", "f", nil, "Consider only these files (repeatable)")
}

func runSelect(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(selectFiles)
	if err != nil {
		return err
	}
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.client.Close()

	req := pipeline.Request{
		WorkspacePath: root,
		Query:         strings.Join(args, " "),
		Files:         selectFiles,
	}
	p := &printer{w: cmd.OutOrStdout(), json: jsonOutput}
	return p.print(a.pre.WhichFiles(cmd.Context(), req))
}
