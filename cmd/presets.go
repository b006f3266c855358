package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/streamhouse/streamsync/pkg/config"
	"github.com/streamhouse/streamsync/pkg/preset"
)

func Presets(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "manage the table-definition presets",
		Subcommands: []*cli.Command{
			ListPresets(isDebug),
		},
	}
}

func ListPresets(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list the presets found in the presets directory",
		Flags: []cli.Flag{
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

			settingsPath := c.String("config-file")
			if settingsPath == "" {
				settingsPath = defaultSettingsFile
			}

			settings, err := config.LoadOrCreate(fs, settingsPath)
			if err != nil {
				printError(err, c.String("output"), "Failed to load the settings file")
				return cli.Exit("", 1)
			}

			presets := preset.NewLoader(fs, settings.PresetsPath)
			if err := presets.LoadAll(); err != nil {
				printError(err, c.String("output"), "Failed to load the presets")
				return cli.Exit("", 1)
			}

			type entry struct {
				BackendType string `json:"backend_type"`
				Name        string `json:"name"`
			}

			entries := make([]entry, 0)
			for _, backendType := range presets.BackendTypes() {
				for _, name := range presets.Names(backendType) {
					entries = append(entries, entry{BackendType: backendType, Name: name})
				}
			}
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].BackendType != entries[j].BackendType {
					return entries[i].BackendType < entries[j].BackendType
				}
				return entries[i].Name < entries[j].Name
			})

			if strings.ToLower(c.String("output")) == "json" {
				js, err := json.Marshal(entries)
				if err != nil {
					printError(err, "plain", "Failed to marshal the output")
					return cli.Exit("", 1)
				}
				fmt.Println(string(js))
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s/%s\n", e.BackendType, e.Name)
			}
			return nil
		},
	}
}
