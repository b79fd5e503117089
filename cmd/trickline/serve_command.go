package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ridelens/trickline/internal/api"
	"github.com/ridelens/trickline/internal/detector"
	"github.com/ridelens/trickline/internal/monitoring"
	"github.com/ridelens/trickline/internal/pipeline"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitoring and query API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.tuning()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rt := pipeline.New(cfg, detector.FromTuning(cfg), store)
			defer rt.Shutdown()

			server := api.NewServer(rt)
			monitoring.Logf("serving API on %s", addr)
			return http.ListenAndServe(addr, api.LoggingMiddleware(server.ServeMux()))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
