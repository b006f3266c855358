package cmd

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/streamhouse/streamsync/pkg/api"
)

func Serve(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the stream administration API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-file",
				Usage: "the path to the .streamsync.yml file",
			},
			&cli.StringFlag{
				Name:  "resync-every",
				Usage: "periodically resync the agent configuration, e.g. '5m'",
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

			if every := c.String("resync-every"); every != "" {
				scheduler := cron.New()
				_, err := scheduler.AddFunc("@every "+every, func() {
					if err := application.syncer.SyncAll(context.Background(), false); err != nil {
						logger.Errorf("scheduled resync failed: %v", err)
					}
				})
				if err != nil {
					printError(err, "plain", "Invalid resync schedule")
					return cli.Exit("", 1)
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			if !*isDebug {
				gin.SetMode(gin.ReleaseMode)
			}

			server := api.NewServer(
				logger,
				application.settings,
				application.presets,
				application.store,
				application.syncer,
				selectorResolver(application.manager),
			)

			logger.Infof("listening on %s", application.settings.ListenAddr)
			if err := server.Router().Run(application.settings.ListenAddr); err != nil {
				printError(err, "plain", "The API server failed")
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
