package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/imagelock/internal/app"
	"github.com/iliyamo/imagelock/internal/config"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Configuration comes from the environment (optionally a dotenv file). The
schema is created on startup when missing. SIGINT or SIGTERM triggers a
graceful shutdown.

Example:
  imagelock serve
  imagelock serve --port 9090 --env-file ./prod.env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port, overrides APP_PORT")

	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := app.NewLogger(cfg.Env)
	srv, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}
