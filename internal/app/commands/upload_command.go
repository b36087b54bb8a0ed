package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"cv-console/internal/backend"
)

// GetUploadCommand возвращает команду загрузки видео
func GetUploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a video for analysis",
		ArgsUsage: "<file>",
		Description: `Upload a video to the backend. With --process the backend creates cameras
from it: "Original" plus the selected fisheye views (0-7, 45° apart).

Examples:
  cv-console upload clip.mp4
  cv-console upload lobby.mp4 --process --fisheye --prefix Lobby --views 0,2,4`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fisheye", Usage: "Enable fisheye dewarping"},
			&cli.StringFlag{Name: "prefix", Value: "Camera", Usage: "Name prefix for created cameras"},
			&cli.StringFlag{Name: "views", Usage: "Comma-separated fisheye views 0-7 (default all)"},
			&cli.BoolFlag{Name: "process", Usage: "Create cameras from the uploaded video"},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer syncLogger(ctx.Logger)

			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("file is required")
			}

			views, err := backend.ParseViews(c.String("views"))
			if err != nil {
				return err
			}

			req := backend.UploadRequest{
				Path:             path,
				EnableFisheye:    c.Bool("fisheye"),
				CameraNamePrefix: c.String("prefix"),
				SelectedViews:    views,
			}
			client := newBackend(ctx)

			if !c.Bool("process") {
				res, err := client.Upload(c.Context, req)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(ctx.Out, "%s\nvideo_url: %s\n", res.Message, res.VideoURL)
				return err
			}

			res, err := client.UploadAndProcess(c.Context, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.Out, "status: %s\n", res.Status)
			return printCameras(ctx, res.CreatedCameras)
		},
	}
}
