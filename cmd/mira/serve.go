package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/mira/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake server",
		Long: `Run the HTTP intake server.

  POST /intake        multipart form with file, json_data or email_text
  GET  /inputs/{id}   audit trail of one input
  GET  /health        liveness
  GET  /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ListenAddr, "addr", "", "listen address (default 127.0.0.1:8000)")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(opts, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	limit, err := a.cfg.UploadLimit()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:           a.cfg.ListenAddr.Value,
		Pipeline:       a.pipeline,
		Inputs:         a.store,
		Metrics:        a.metrics,
		Logger:         a.logger,
		MaxUploadBytes: limit,
		Version:        version,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
