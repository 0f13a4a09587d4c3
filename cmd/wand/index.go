package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/workspace"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Bring the workspace summary index up to date",
	Long: `Scan the workspace, summarize new and changed files with the fast model,
and save the index to .wand/workspace_index.json. No selection is made.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(nil)
	if err != nil {
		return err
	}
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.client.Close()

	files, err := a.pre.Scanner.Scan(root)
	if err != nil {
		return fmt.Errorf("scan workspace: %w", err)
	}

	indexPath := workspace.IndexPath(root)
	idx, err := workspace.LoadIndex(indexPath)
	var corrupt *workspace.CorruptIndexError
	if errors.As(err, &corrupt) {
		a.logger.Warn("rebuilding corrupt index", "path", indexPath)
	} else if err != nil {
		return err
	}

	counts := map[workspace.Change]int{}
	out := cmd.OutOrStdout()
	_, err = a.pre.Reconciler.Reconcile(cmd.Context(), root, files, idx, func(st workspace.FileStatus) bool {
		counts[st.Change]++
		if !jsonOutput {
			fmt.Fprint(out, styleStatus(st.Line()+"\n"))
		}
		return true
	})
	if saveErr := idx.Save(indexPath); saveErr != nil {
		return errors.Join(err, fmt.Errorf("save index: %w", saveErr))
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, map[string]any{
			"index":     indexPath,
			"new":       counts[workspace.ChangeNew],
			"modified":  counts[workspace.ChangeModified],
			"unchanged": counts[workspace.ChangeUnchanged],
		})
	}
	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%d new, %d modified, %d unchanged",
		counts[workspace.ChangeNew], counts[workspace.ChangeModified], counts[workspace.ChangeUnchanged])))
	return nil
}
