package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	miramcp "github.com/hurttlocker/mira/internal/mcp"
)

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the intake tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol, so logs stay on stderr.
			a, err := openApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			s := miramcp.NewServer(miramcp.ServerConfig{
				Pipeline: a.pipeline,
				Audit:    a.store,
				Version:  version,
				Logger:   a.logger,
			})
			return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		},
	}
}
