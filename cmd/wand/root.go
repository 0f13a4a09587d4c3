package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/config"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/pipeline"
	"github.com/martinemde/wand/selector"
	"github.com/martinemde/wand/summarize"
	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

var (
	configFile    string
	logLevelFlag  string
	jsonOutput    bool
	workspaceFlag string
)

var rootCmd = &cobra.Command{
	Use:   "wand",
	Short: "Workspace assistant",
	Long: `wand keeps a summary index of a workspace, picks the files relevant to a
question with a fast model, and answers with a tool-using agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: .wand/wand.yaml, then ~/.config/wand/wand.yaml)")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&jsonOutput, "json", false, "Write events as newline-delimited JSON")
	pf.StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace root (default: current directory)")
}

// app holds the services built from configuration for one command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	client *unifiedllm.Client
	pre    *pipeline.Preprocessor
	asst   *pipeline.Assistant
}

// workspaceRoot resolves the workspace for a command. With explicit files
// and no --workspace there is none.
func workspaceRoot(files []string) (string, error) {
	if workspaceFlag != "" || len(files) > 0 {
		return workspaceFlag, nil
	}
	return os.Getwd()
}

func loadConfig(root string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, root)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.NewLogger(os.Stderr, logging.LevelFromString(cfg.LogLevel))
	return cfg, logger, nil
}

// newApp builds the completion client and the pipeline. The caller closes
// the client.
func newApp(root string) (*app, error) {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	client, err := unifiedllm.NewClientFromConfig(cfg.LLM())
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	scanner := workspace.NewScanner()
	scanner.IgnoreDirs = cfg.IgnoreDirs
	if !slices.Contains(scanner.IgnoreDirs, workspace.MetaDir) {
		scanner.IgnoreDirs = append(scanner.IgnoreDirs, workspace.MetaDir)
	}

	reconciler := workspace.NewReconciler(summarize.New(client, cfg.HighSpeedTextModel, cfg.Temperature, logger), logger)
	reconciler.MaxFiles = cfg.MaxFiles

	pre := pipeline.NewPreprocessor(scanner, reconciler, selector.New(client, cfg.HighSpeedTextModel, cfg.Temperature, logger), logger)
	if !jsonOutput {
		pre.Format = pipeline.TextFormat{}
	}

	asst := pipeline.NewAssistant(pre, client, pipeline.Models{
		Text:       cfg.StandardTextModel,
		Multimodal: cfg.StandardMultimodalModel,
	}, logger)
	asst.Session.MaxTurns = cfg.MaxTurns
	asst.Session.Temperature = cfg.Temperature

	return &app{cfg: cfg, logger: logger, client: client, pre: pre, asst: asst}, nil
}
