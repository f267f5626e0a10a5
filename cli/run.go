package cli

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/karloscodes/kour"
)

func runCmd(load func() (*kour.App, error)) *cobra.Command {
	var (
		host   string
		port   int
		reload bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and serve until interrupted.

Host and port default to the server section of the configuration.

Examples:
  kour run
  kour run --port=8080
  kour run --host=127.0.0.1 --reload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}

			cfg := app.Config()
			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}
			if reload {
				app.WatchConfig()
			}

			server, err := kour.NewServer(app, kour.ServerConfigFrom(cfg, app.Logger()))
			if err != nil {
				return err
			}
			addr := host + ":" + strconv.Itoa(port)
			app.Logger().Info("starting server",
				slog.String("app", cfg.App.Name),
				slog.String("environment", cfg.App.Environment),
				slog.String("address", addr))
			return server.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().BoolVar(&reload, "reload", false, "Reload the configuration file when it changes")

	return cmd
}
