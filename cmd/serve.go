package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/apilog-dashboard/internal/server"
)

// newServeCmd creates the 'serve' subcommand that runs the export backend.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the export backend",
		Long: `Serves the log query and export endpoints and runs the export workers.
Storage, queue, database, and event backends are chosen by configuration.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
