package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cv-console/internal/stream"
	"cv-console/internal/types"
)

// GetWatchCommand возвращает команду наблюдения за одной камерой
func GetWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream one camera and print state changes and fps",
		ArgsUsage: "<camera-id>",
		Description: `Open a single stream client for a camera.

Examples:
  cv-console watch cam-1 --duration 30s --snapshot last.jpg
  cv-console watch --url ws://localhost:8000/ws/cam-1`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Stream endpoint; defaults to <api-url>/ws/<camera-id>",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Stop after this long (0 = until Ctrl+C)",
			},
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "Write the last received JPEG to this file on exit",
			},
			&cli.BoolFlag{
				Name:  "reconnect",
				Usage: "Reconnect with backoff after failures",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer syncLogger(ctx.Logger)

			endpoint := c.String("url")
			cameraID := c.Args().First()
			if endpoint == "" {
				if cameraID == "" {
					return fmt.Errorf("camera id or --url is required")
				}
				endpoint = ctx.Config.StreamEndpoint(types.Camera{ID: cameraID, Enabled: true})
			}

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d := c.Duration("duration"); d > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, d)
				defer cancel()
			}

			return watch(runCtx, ctx, endpoint, cameraID, c.Bool("reconnect"), c.String("snapshot"))
		},
	}
}

func watch(ctx context.Context, cmd *CommandContext, endpoint, cameraID string, reconnect bool, snapshot string) error {
	cfg := cmd.Config
	policy := stream.ReconnectPolicy{
		Enabled:      reconnect || cfg.Stream.Reconnect.Enabled,
		MaxAttempts:  cfg.Stream.Reconnect.MaxAttempts,
		InitialDelay: cfg.Stream.Reconnect.InitialDelay,
		MaxDelay:     cfg.Stream.Reconnect.MaxDelay,
		Multiplier:   cfg.Stream.Reconnect.Multiplier,
	}

	lastFPS := -1.0
	client := stream.NewClient(cmd.Logger,
		stream.WithCameraID(cameraID),
		stream.WithDialer(stream.NewWebSocketDialer(cfg.Stream.HandshakeTimeout, cfg.Stream.MaxMessageBytes)),
		stream.WithReconnect(policy),
		stream.OnState(func(s stream.State) {
			label := s.Overlay()
			if label == "" {
				label = "Live"
			}
			fmt.Fprintf(cmd.Out, "%s  state=%s (%s)\n", time.Now().Format(time.TimeOnly), s, label)
		}),
		stream.OnStats(func(s stream.Stats) {
			if s.FPS != lastFPS {
				lastFPS = s.FPS
				fmt.Fprintf(cmd.Out, "%s  fps=%.1f\n", time.Now().Format(time.TimeOnly), s.FPS)
			}
		}),
	)

	cmd.Logger.Info("Watching stream", zap.String("endpoint", endpoint))
	if err := client.SetEndpoint(endpoint); err != nil {
		return err
	}

	<-ctx.Done()

	snap := client.Snapshot()
	if err := client.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Out, "final state=%s", snap.State)
	if snap.Frame != nil {
		fmt.Fprintf(cmd.Out, " frames=%d", snap.Frame.Seq)
	}
	if snap.LastError != "" {
		fmt.Fprintf(cmd.Out, " error=%q", snap.LastError)
	}
	fmt.Fprintln(cmd.Out)

	if snapshot == "" {
		return nil
	}
	if snap.Frame == nil {
		return fmt.Errorf("no frame received, %s not written", snapshot)
	}

	data, err := snap.Frame.JPEG()
	if err != nil {
		return fmt.Errorf("decode last frame: %w", err)
	}
	if err := os.WriteFile(snapshot, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Fprintf(cmd.Out, "snapshot written to %s (%d bytes)\n", snapshot, len(data))
	return nil
}
