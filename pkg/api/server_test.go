package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhouse/streamsync/pkg/config"
	"github.com/streamhouse/streamsync/pkg/preset"
	"github.com/streamhouse/streamsync/pkg/query"
	"github.com/streamhouse/streamsync/pkg/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	streams   map[uuid.UUID]*stream.Stream
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{streams: map[uuid.UUID]*stream.Stream{}}
}

func (f *fakeStore) Create(ctx context.Context, st *stream.Stream) error {
	if f.createErr != nil {
		return f.createErr
	}

	st.ID = uuid.New()
	key, err := stream.NewIngestKey()
	if err != nil {
		return err
	}
	st.IngestKey = key
	f.streams[st.ID] = st
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*stream.Stream, error) {
	st, ok := f.streams[id]
	if !ok {
		return nil, stream.ErrStreamNotFound
	}
	return st, nil
}

func (f *fakeStore) GetByIngestKey(ctx context.Context, key string) (*stream.Stream, error) {
	for _, st := range f.streams {
		if st.IngestKey == key {
			return st, nil
		}
	}
	return nil, stream.ErrStreamNotFound
}

func (f *fakeStore) List(ctx context.Context) ([]stream.Stream, error) {
	streams := make([]stream.Stream, 0, len(f.streams))
	for _, st := range f.streams {
		streams = append(streams, *st)
	}
	return streams, nil
}

func (f *fakeStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	st, ok := f.streams[id]
	if !ok {
		return stream.ErrStreamNotFound
	}
	st.Enabled = enabled
	return nil
}

func (f *fakeStore) Archive(ctx context.Context, id uuid.UUID) error {
	st, ok := f.streams[id]
	if !ok {
		return stream.ErrStreamNotFound
	}
	st.Archived = true
	return nil
}

type fakeSyncer struct {
	created int
	synced  int
	err     error
}

func (f *fakeSyncer) StreamCreated(ctx context.Context, st stream.Stream) error {
	f.created++
	return f.err
}

func (f *fakeSyncer) SyncAll(ctx context.Context, clean bool) error {
	f.synced++
	return f.err
}

type fakeSelector struct {
	rows [][]interface{}
	err  error
}

func (f *fakeSelector) Select(ctx context.Context, q *query.Query) ([][]interface{}, error) {
	return f.rows, f.err
}

type fixture struct {
	server   *Server
	store    *fakeStore
	syncer   *fakeSyncer
	selector *fakeSelector
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "presets/clickhouse/app_events.sql",
		[]byte("CREATE TABLE IF NOT EXISTS {db_table} (timestamp DateTime64(3)) ENGINE = MergeTree;"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "presets/clickhouse/app_events.json",
		[]byte(`{"event": "signup"}`), 0o644))

	presets := preset.NewLoader(fs, "presets")
	require.NoError(t, presets.LoadAll())

	settings, err := config.LoadOrCreate(fs, ".streamsync.yml")
	require.NoError(t, err)
	settings.DataSources = []stream.DataSource{
		{
			Name: "warehouse",
			Type: stream.TypeClickHouse,
			Options: stream.Options{
				URL:      "http://store:8123",
				Database: "default",
			},
		},
		{Name: "legacy", Type: "postgres"},
	}

	store := newFakeStore()
	syn := &fakeSyncer{}
	sel := &fakeSelector{}

	server := NewServer(zap.NewNop().Sugar(), settings, presets, store, syn,
		func(name string) (Selector, error) { return sel, nil })

	return &fixture{
		server:   server,
		store:    store,
		syncer:   syn,
		selector: sel,
		router:   server.Router(),
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/streams",
		`{"name": "App events", "data_source": "warehouse", "db_table": "events_app"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.syncer.created)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "events_app", resp["db_table"])
	assert.Equal(t, stream.DefaultPreset, resp["db_table_preset"])
	assert.NotEmpty(t, resp["ingest_key"])
	assert.Contains(t, resp["ingest_url"], "/ingest/")
	assert.Contains(t, resp["ingest_example"], "curl -X POST")
}

func TestCreateStreamValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"data_source": "warehouse", "db_table": "t"}`},
		{"missing table", `{"name": "x", "data_source": "warehouse"}`},
		{"unknown data source", `{"name": "x", "data_source": "nope", "db_table": "t"}`},
		{"unsupported data source", `{"name": "x", "data_source": "legacy", "db_table": "t"}`},
		{"unknown preset", `{"name": "x", "data_source": "warehouse", "db_table": "t", "db_table_preset": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/streams", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, 0, f.syncer.created)
		})
	}
}

func TestCreateStreamConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.createErr = errors.Wrap(stream.ErrStreamExists, "a stream for table 't' on data source 'warehouse' already exists")

	rec := f.do(http.MethodPost, "/api/streams",
		`{"name": "x", "data_source": "warehouse", "db_table": "t"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, 0, f.syncer.created)
}

func TestDisableStreamTriggersResync(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))

	rec := f.do(http.MethodPost, "/api/streams/"+st.ID.String()+"/disable", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, st.Enabled)
	assert.Equal(t, 1, f.syncer.synced)
}

func TestArchiveUnknownStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/streams/"+uuid.NewString()+"/archive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.syncer.synced)
}

func TestIngestExampleEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))

	rec := f.do(http.MethodGet, "/public/streams/"+st.IngestKey+"/example", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["curl"], "/ingest/"+st.IngestKey)
}

func TestPublicEndpointsRejectWrongKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))

	for _, key := range []string{"wrong-key", st.IngestKey + "x"} {
		rec := f.do(http.MethodGet, "/public/streams/"+key+"/results", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestStreamResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))
	f.selector.rows = [][]interface{}{{"2026-01-01", "signup"}}

	rec := f.do(http.MethodGet, "/public/streams/"+st.IngestKey+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp["rows"], 1)
}

func TestStreamResultsBadLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))

	for _, limit := range []string{"abc", "0", "-5", "100000"} {
		rec := f.do(http.MethodGet, "/public/streams/"+st.IngestKey+"/results?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestStreamResultsBackendFailureIsGeneric(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	st := &stream.Stream{Name: "x", DataSource: "warehouse", Table: "t", Preset: stream.DefaultPreset}
	require.NoError(t, f.store.Create(context.Background(), st))
	f.selector.err = errors.New("clickhouse at store:8123 rejected credentials for user writer")

	rec := f.do(http.MethodGet, "/public/streams/"+st.IngestKey+"/results", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "writer", "backend errors must not leak to the client")
	assert.Contains(t, rec.Body.String(), "query execution failed")
}
