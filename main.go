package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/streamhouse/streamsync/cmd"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	isDebug := false
	color.NoColor = false

	app := &cli.App{
		Name:     "streamsync",
		Version:  version,
		Usage:    "Provision ingestion streams and keep the shipping agent configuration in sync",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Value:       false,
				Usage:       "show debug information",
				Destination: &isDebug,
			},
		},
		Commands: []*cli.Command{
			cmd.Sync(&isDebug),
			cmd.Render(&isDebug),
			cmd.Serve(&isDebug),
			cmd.Presets(&isDebug),
			cmd.VersionCmd(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
