package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/unifiedllm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models of the configured provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot(nil)
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig(root)
		if err != nil {
			return err
		}

		list := unifiedllm.FetchModels(cmd.Context(), cfg.LLM())
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, list)
		}
		if list.Error != "" {
			return errors.New(list.Error)
		}
		for _, m := range list.Models {
			marker := "  "
			if m == cfg.StandardTextModel || m == cfg.HighSpeedTextModel || m == cfg.StandardMultimodalModel {
				marker = "* "
			}
			fmt.Fprintln(out, marker+m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
