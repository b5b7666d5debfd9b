package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhollis/skiff/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local browsing and upload API",
	Long: `Serve starts a local HTTP API in front of the remote backend:
directory listings, file actions, multipart uploads and a websocket
feed of transfer progress.

Without a configured backend the API still starts and reports its
unconfigured state on /api/status.`,
	Example: `  skiff serve
  skiff serve --listen 0.0.0.0:8384`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Server.Listen = serveListen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(core, &cfg.Server, logger)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Listen address (overrides config)")
}
