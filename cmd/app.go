package cmd

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/streamhouse/streamsync/pkg/api"
	"github.com/streamhouse/streamsync/pkg/clickhouse"
	"github.com/streamhouse/streamsync/pkg/config"
	"github.com/streamhouse/streamsync/pkg/connection"
	"github.com/streamhouse/streamsync/pkg/ingest"
	"github.com/streamhouse/streamsync/pkg/preset"
	"github.com/streamhouse/streamsync/pkg/stream"
	"github.com/streamhouse/streamsync/pkg/vector"
)

// app wires the long-lived collaborators together once per command
// invocation: settings, preset registry, stream store, connection manager and
// the synchronization trigger.
type app struct {
	settings *config.Settings
	presets  *preset.Loader
	store    *stream.Store
	manager  *connection.Manager
	syncer   *ingest.Syncer
	config   *vector.Config
}

func buildApp(logger *zap.SugaredLogger, settingsPath string) (*app, error) {
	if settingsPath == "" {
		settingsPath = defaultSettingsFile
	}

	settings, err := config.LoadOrCreate(fs, settingsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load the settings file %s", settingsPath)
	}

	presets := preset.NewLoader(fs, settings.PresetsPath)
	if err := presets.LoadAll(); err != nil {
		return nil, err
	}

	store, err := stream.Connect(settings.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, err
	}

	manager, err := connection.NewManagerFromSettings(settings.DataSources)
	if err != nil {
		return nil, err
	}

	vectorConfig := vector.NewConfig(fs, settings.VectorConfigPath)
	syncer := ingest.NewSyncer(logger, presets, store, settings, executorResolver(manager), vectorConfig)

	return &app{
		settings: settings,
		presets:  presets,
		store:    store,
		manager:  manager,
		syncer:   syncer,
		config:   vectorConfig,
	}, nil
}

func executorResolver(manager *connection.Manager) ingest.ExecutorResolver {
	return func(name string) (ingest.QueryExecutor, error) {
		client, err := manager.GetClickHouseConnection(name)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func selectorResolver(manager *connection.Manager) api.SelectorResolver {
	return func(name string) (api.Selector, error) {
		client, err := manager.GetClickHouseConnection(name)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

var (
	_ ingest.QueryExecutor = (*clickhouse.Client)(nil)
	_ api.Selector         = (*clickhouse.Client)(nil)
)
