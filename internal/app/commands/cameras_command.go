package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"cv-console/internal/backend"
	"cv-console/internal/types"
)

// GetCamerasCommand возвращает команду управления реестром камер
func GetCamerasCommand() *cli.Command {
	return &cli.Command{
		Name:  "cameras",
		Usage: "Manage the backend camera registry",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cameras",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print raw JSON"},
				},
				Action: func(c *cli.Context) error {
					ctx, err := NewCommandContext(c)
					if err != nil {
						return err
					}
					defer syncLogger(ctx.Logger)

					cams, err := newBackend(ctx).ListCameras(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						enc := json.NewEncoder(ctx.Out)
						enc.SetIndent("", "  ")
						return enc.Encode(cams)
					}
					return printCameras(ctx, cams)
				},
			},
			{
				Name:  "add",
				Usage: "Create or update a camera",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Camera id (generated when empty)"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "Display name"},
					&cli.StringFlag{Name: "location", Usage: "Location"},
					&cli.StringFlag{Name: "type", Value: "people_counting", Usage: "people_counting, dress_code or fall_detection"},
					&cli.StringFlag{Name: "mode", Value: "rtsp", Usage: "Source mode"},
					&cli.StringFlag{Name: "ws-url", Usage: "Explicit stream endpoint"},
					&cli.StringFlag{Name: "resolution", Value: "1920x1080", Usage: "Resolution"},
					&cli.IntFlag{Name: "fps", Value: 30, Usage: "Nominal fps"},
					&cli.BoolFlag{Name: "disabled", Usage: "Create the camera disabled"},
				},
				Action: func(c *cli.Context) error {
					ctx, err := NewCommandContext(c)
					if err != nil {
						return err
					}
					defer syncLogger(ctx.Logger)

					id := c.String("id")
					if id == "" {
						id = uuid.NewString()
					}

					saved, err := newBackend(ctx).SaveCamera(c.Context, types.Camera{
						ID:         id,
						Name:       c.String("name"),
						Location:   c.String("location"),
						Type:       c.String("type"),
						Status:     "offline",
						Mode:       c.String("mode"),
						WSURL:      c.String("ws-url"),
						Resolution: c.String("resolution"),
						FPS:        c.Int("fps"),
						Enabled:    !c.Bool("disabled"),
					})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(ctx.Out, "camera %s saved\n", saved.ID)
					return err
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a camera",
				ArgsUsage: "<camera-id>",
				Action: func(c *cli.Context) error {
					ctx, err := NewCommandContext(c)
					if err != nil {
						return err
					}
					defer syncLogger(ctx.Logger)

					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("camera id is required")
					}
					if err := newBackend(ctx).DeleteCamera(c.Context, id); err != nil {
						return err
					}
					_, err = fmt.Fprintf(ctx.Out, "camera %s deleted\n", id)
					return err
				},
			},
		},
	}
}

func newBackend(ctx *CommandContext) *backend.Client {
	return backend.NewClient(ctx.Config, ctx.Logger)
}

func printCameras(ctx *CommandContext, cams []types.Camera) error {
	w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tENABLED\tSTREAM")
	for _, cam := range cams {
		endpoint := ctx.Config.StreamEndpoint(cam)
		if endpoint == "" {
			endpoint = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", cam.ID, cam.Name, cam.Type, cam.Status, cam.Enabled, endpoint)
	}
	return w.Flush()
}

