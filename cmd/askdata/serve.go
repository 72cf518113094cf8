package main

import (
	"github.com/spf13/cobra"

	"askdata/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the HTTP API. Callers authenticate with the same basic or
bearer credentials they use against the Data Catalog; the server forwards
them and never stores credentials of its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(*cfg, logger)
		if err != nil {
			return err
		}
		defer sys.Close()

		server := api.NewServer(sys.pipeline, sys.store, sys.engine, sys.catalog, sys.catalog, sys.ingestor, *cfg, logger)

		ctx, stop := signalContext()
		defer stop()
		return server.Serve(ctx)
	},
}
