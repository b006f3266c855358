package connection

import (
	"github.com/pkg/errors"

	"github.com/streamhouse/streamsync/pkg/clickhouse"
	"github.com/streamhouse/streamsync/pkg/stream"
)

// Manager holds one lazily-built client per configured data source, keyed by
// the data source name.
type Manager struct {
	ClickHouse map[string]*clickhouse.Client
}

func (m *Manager) GetClickHouseConnection(name string) (*clickhouse.Client, error) {
	if m.ClickHouse == nil {
		return nil, errors.New("no clickhouse connections found")
	}

	client, ok := m.ClickHouse[name]
	if !ok {
		return nil, errors.Errorf("clickhouse connection '%s' not found", name)
	}

	return client, nil
}

func (m *Manager) AddClickHouseConnectionFromConfig(ds *stream.DataSource) error {
	if ds.Type != stream.TypeClickHouse {
		return errors.Errorf("data source '%s' has unsupported type '%s'", ds.Name, ds.Type)
	}

	if m.ClickHouse == nil {
		m.ClickHouse = make(map[string]*clickhouse.Client)
	}

	client, err := clickhouse.NewClient(&clickhouse.Config{
		URL:      ds.Options.URL,
		Database: ds.Options.Database,
		Username: ds.Options.User,
		Password: ds.Options.Password,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to build the clickhouse client for data source '%s'", ds.Name)
	}

	m.ClickHouse[ds.Name] = client
	return nil
}

// NewManagerFromSettings builds clients for every supported data source. Data
// sources with unsupported types are skipped, they are validated elsewhere.
func NewManagerFromSettings(sources []stream.DataSource) (*Manager, error) {
	m := &Manager{}
	for i := range sources {
		ds := &sources[i]
		if !ds.Supported() {
			continue
		}

		if err := m.AddClickHouseConnectionFromConfig(ds); err != nil {
			return nil, err
		}
	}

	return m, nil
}
