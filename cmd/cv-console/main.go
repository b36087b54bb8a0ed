package main

import (
	"fmt"
	"os"

	"cv-console/internal/app"
	"cv-console/internal/app/commands"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	app.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)

	if err := commands.NewApp(Version).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
