package commands

import (
	"github.com/urfave/cli/v2"

	"cv-console/internal/config"
)

// GetCommands возвращает все доступные команды
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetServeCommand(),
		GetWatchCommand(),
		GetCamerasCommand(),
		GetUploadCommand(),
		GetVersionCommand(),
	}
}

// GetGlobalFlags возвращает флаги, общие для всех команд
func GetGlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultConfigPath,
			Usage:   "Path to YAML config file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "Analytics backend base URL (overrides " + config.EnvAPIURL + ")",
		},
	}
}

// NewApp создает CLI приложение консоли
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:     "cv-console",
		Usage:    "Operator console for the video analytics backend",
		Version:  version,
		Flags:    GetGlobalFlags(),
		Commands: GetCommands(),
	}
}
