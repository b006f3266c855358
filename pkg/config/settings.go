package config

import (
	fs2 "io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/streamhouse/streamsync/pkg/stream"
)

const (
	DefaultVectorConfigPath = "vector.toml"
	DefaultPresetsPath      = "presets"
	DefaultListenAddr       = ":8170"
	DefaultIngestBaseURL    = "http://localhost:8180"
)

// Settings is the application configuration, loaded from a yaml file with
// environment overrides for the deployment-specific bits.
type Settings struct {
	fs   afero.Fs
	path string

	ListenAddr       string              `yaml:"listen_addr"`
	IngestBaseURL    string              `yaml:"ingest_base_url"`
	DatabaseDSN      string              `yaml:"database_dsn"`
	VectorConfigPath string              `yaml:"vector_config_path"`
	PresetsPath      string              `yaml:"presets_path"`
	DataSources      []stream.DataSource `yaml:"data_sources" validate:"dive"`
}

// ErrDataSourceNotFound is returned when a stream references a data source
// name that is not configured.
var ErrDataSourceNotFound = errors.New("data source not found")

func (s *Settings) DataSource(name string) (*stream.DataSource, error) {
	for i := range s.DataSources {
		if s.DataSources[i].Name == name {
			return &s.DataSources[i], nil
		}
	}

	return nil, errors.Wrapf(ErrDataSourceNotFound, "no data source named '%s'", name)
}

func (s *Settings) Persist() error {
	content, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to marshal the settings")
	}

	err = afero.WriteFile(s.fs, s.path, content, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to write the settings file %s", s.path)
	}

	return nil
}

func LoadFromFile(fs afero.Fs, path string) (*Settings, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(content, &settings); err != nil {
		return nil, errors.Wrapf(err, "failed to parse the settings file %s", path)
	}

	if err := validator.New().Struct(&settings); err != nil {
		return nil, errors.Wrapf(err, "invalid settings in %s", path)
	}

	settings.fs = fs
	settings.path = path
	settings.applyDefaults()
	settings.applyEnv()
	return &settings, nil
}

// LoadOrCreate loads the settings file, writing one with the defaults when it
// does not exist yet. Environment overrides are applied after persisting so
// deployment-specific values never end up baked into the file.
func LoadOrCreate(fs afero.Fs, path string) (*Settings, error) {
	settings, err := LoadFromFile(fs, path)
	if err != nil && !errors.Is(err, fs2.ErrNotExist) {
		return nil, err
	}

	if err == nil {
		return settings, nil
	}

	settings = &Settings{fs: fs, path: path}
	settings.applyDefaults()
	if err := settings.Persist(); err != nil {
		return nil, err
	}

	settings.applyEnv()
	return settings, nil
}

func (s *Settings) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.IngestBaseURL == "" {
		s.IngestBaseURL = DefaultIngestBaseURL
	}
	if s.VectorConfigPath == "" {
		s.VectorConfigPath = DefaultVectorConfigPath
	}
	if s.PresetsPath == "" {
		s.PresetsPath = DefaultPresetsPath
	}
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("VECTOR_CONFIG_PATH"); v != "" {
		s.VectorConfigPath = v
	}
	if v := os.Getenv("STREAMSYNC_DSN"); v != "" {
		s.DatabaseDSN = v
	}
}
