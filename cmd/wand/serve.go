package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/martinemde/wand/pipeline"
	"github.com/martinemde/wand/server"
	"github.com/martinemde/wand/unifiedllm"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve selection and chat to host applications",
	Long: `Start the HTTP server. POST /select and POST /chat stream events as
server-sent events; GET /ws streams them over a websocket that also accepts
{"type":"stop"}. GET /models and GET /tools report configuration.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "listen", "", "Address to listen on (default: config listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(nil)
	if err != nil {
		return err
	}
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.client.Close()
	// Hosts render the status markup.
	a.pre.Format = pipeline.HTMLFormat{}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Listen
	}
	llm := a.cfg.LLM()
	srv := server.New(server.Deps{
		Preprocessor: a.pre,
		Assistant:    a.asst,
		Models: func(ctx context.Context) unifiedllm.ModelList {
			return unifiedllm.FetchModels(ctx, llm)
		},
		Workspace: root,
	}, a.logger)

	fmt.Fprintln(cmd.ErrOrStderr(), headingStyle.Render("wand listening on http://"+addr))
	return srv.Run(cmd.Context(), addr)
}
