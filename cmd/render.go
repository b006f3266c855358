package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/streamhouse/streamsync/pkg/ingest"
	"github.com/streamhouse/streamsync/pkg/vector"
)

func Render(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "print the configuration document that would be generated, without writing it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-file",
				Usage: "the path to the .streamsync.yml file",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()
			logger := makeLogger(*isDebug)

			application, err := buildApp(logger, c.String("config-file"))
			if err != nil {
				printError(err, "plain", "Failed to set up the application")
				return cli.Exit("", 1)
			}

			// Synthesize into an in-memory document so the real file on disk
			// stays untouched.
			scratch := vector.NewConfig(afero.NewMemMapFs(), application.settings.VectorConfigPath)
			syncer := ingest.NewSyncer(
				logger,
				application.presets,
				application.store,
				application.settings,
				executorResolver(application.manager),
				scratch,
			)

			if err := syncer.SyncAll(context.Background(), true); err != nil {
				printError(err, "plain", "Failed to synthesize the ingest configuration")
				return cli.Exit("", 1)
			}

			content, err := scratch.Encode()
			if err != nil {
				printError(err, "plain", "Failed to encode the ingest configuration")
				return cli.Exit("", 1)
			}

			fmt.Print(string(content))
			return nil
		},
	}
}
