package handlers

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mtmatch/internal/server"
)

// NewServeCmd creates the serve command for the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the mtmatch HTTP API.

The API covers message ingestion, template extraction, matching, the
test-match playground and the cluster visualization. All /api routes
require the configured bearer token; /health does not.

Examples:
  mtmatch serve
  mtmatch serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := a.cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(a.deps, serverCfg).Start(ctx)
}
