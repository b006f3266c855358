package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

func Sync(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "regenerate the shipping agent configuration from the current stream set",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "rebuild the document from scratch instead of merging onto the existing file",
			},
			&cli.StringFlag{
				Name:  "every",
				Usage: "keep running and resync on a schedule, e.g. '1m' or '30s'",
			},
			&cli.StringFlag{
				Name:  "config-file",
				Usage: "the path to the .streamsync.yml file",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()
			logger := makeLogger(*isDebug)

			application, err := buildApp(logger, c.String("config-file"))
			if err != nil {
				printError(err, c.String("output"), "Failed to set up the application")
				return cli.Exit("", 1)
			}

			ctx := context.Background()
			if err := application.syncer.SyncAll(ctx, c.Bool("clean")); err != nil {
				printError(err, c.String("output"), "Failed to regenerate the ingest configuration")
				return cli.Exit("", 1)
			}

			infoPrinter.Printf("Wrote the agent configuration to %s\n", application.config.Path())

			every := c.String("every")
			if every == "" {
				return nil
			}

			scheduler := cron.New()
			_, err = scheduler.AddFunc("@every "+every, func() {
				if err := application.syncer.SyncAll(ctx, false); err != nil {
					logger.Errorf("scheduled resync failed: %v", err)
				}
			})
			if err != nil {
				printError(err, c.String("output"), "Invalid resync schedule")
				return cli.Exit("", 1)
			}

			scheduler.Start()
			defer scheduler.Stop()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			return nil
		},
	}
}
