package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/agentloop"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage the tools the agent created in this workspace",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := workspaceToolStore()
		if err != nil {
			return err
		}
		manifests, listErr := store.List()
		out := cmd.OutOrStdout()
		if jsonOutput {
			if manifests == nil {
				manifests = []agentloop.ToolManifest{}
			}
			if err := writeJSON(out, manifests); err != nil {
				return err
			}
			return listErr
		}
		if len(manifests) == 0 {
			fmt.Fprintln(out, statusStyle.Render("No stored tools in "+store.Dir()))
		}
		for _, m := range manifests {
			line := headingStyle.Render(m.Name)
			if m.Temporary {
				line += statusStyle.Render(" (temporary)")
			}
			fmt.Fprintf(out, "%s: %s\n    %s\n", line, m.Description, toolStyle.Render(m.Command))
		}
		return listErr
	},
}

var toolsClearCmd = &cobra.Command{
	Use:   "clear-temp",
	Short: "Remove tools marked temporary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := workspaceToolStore()
		if err != nil {
			return err
		}
		removed, err := store.ClearTemporary()
		out := cmd.OutOrStdout()
		if jsonOutput {
			if removed == nil {
				removed = []string{}
			}
			if werr := writeJSON(out, map[string]any{"removed": removed}); werr != nil {
				return werr
			}
			return err
		}
		for _, name := range removed {
			fmt.Fprintln(out, "removed "+name)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsClearCmd)
}

func workspaceToolStore() (*agentloop.ToolStore, error) {
	root, err := workspaceRoot(nil)
	if err != nil {
		return nil, err
	}
	return agentloop.NewToolStore(root), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
