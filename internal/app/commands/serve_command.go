package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cv-console/internal/app"
)

// GetServeCommand возвращает команду для запуска консоли
func GetServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the monitoring grid with HTTP and gRPC health servers",
		Description: `Load cameras from the backend, stream the visible page of the grid and
expose it over a local HTTP API.

Examples:
  cv-console serve --port 8080 --layout 9
  cv-console --api-url https://analytics.local serve`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Server host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port",
			},
			&cli.IntFlag{
				Name:  "grpc-port",
				Usage: "gRPC health port",
			},
			&cli.IntFlag{
				Name:  "layout",
				Usage: "Tiles per page: 1, 4 or 9",
			},
			&cli.BoolFlag{
				Name:  "reconnect",
				Usage: "Enable automatic reconnect with backoff",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer syncLogger(ctx.Logger)

			cfg := ctx.Config
			if c.IsSet("host") {
				cfg.Server.Host = c.String("host")
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if c.IsSet("grpc-port") {
				cfg.Server.GRPCPort = c.Int("grpc-port")
			}
			if c.IsSet("layout") {
				cfg.Grid.Layout = c.Int("layout")
			}
			if c.Bool("reconnect") {
				cfg.Stream.Reconnect.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx.Logger.Info("Starting console",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port),
				zap.Int("grpc_port", cfg.Server.GRPCPort),
				zap.String("api", cfg.API.BaseURL))

			application, err := app.NewApplication(cfg, ctx.Logger, nil)
			if err != nil {
				return err
			}

			// Graceful shutdown контекст
			runCtx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt,
				syscall.SIGTERM,
			)
			defer stop()

			application.Bootstrap(runCtx)
			return application.Run(runCtx)
		},
	}
}
