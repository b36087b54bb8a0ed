package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"cv-console/internal/app"
)

// GetVersionCommand возвращает команду вывода версии
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintf(c.App.Writer, "cv-console %s\n", app.Version)
			return err
		},
	}
}
