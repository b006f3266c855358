package vector

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhouse/streamsync/pkg/stream"
)

type decodedDocument struct {
	DataDir    string                    `toml:"data_dir"`
	Sources    map[string]map[string]any `toml:"sources"`
	Transforms map[string]map[string]any `toml:"transforms"`
	Sinks      map[string]map[string]any `toml:"sinks"`
}

func decodeFile(t *testing.T, fs afero.Fs, path string) decodedDocument {
	t.Helper()

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	var doc decodedDocument
	require.NoError(t, toml.Unmarshal(content, &doc))
	return doc
}

func TestResetSeedsBaseline(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	config := NewConfig(fs, "etc/vector/vector.toml")
	require.NoError(t, config.Save())

	doc := decodeFile(t, fs, "etc/vector/vector.toml")
	assert.Equal(t, "/var/lib/vector", doc.DataDir)
	assert.Len(t, doc.Sources, 2)
	assert.Len(t, doc.Sinks, 1)
	assert.Empty(t, doc.Transforms)

	httpSource := doc.Sources[HTTPSourceKey]
	assert.Equal(t, "http_server", httpSource["type"])
	assert.Equal(t, "0.0.0.0:8180", httpSource["address"])
	assert.Equal(t, "POST", httpSource["method"])
	assert.Equal(t, PathKey, httpSource["path_key"])
	assert.Equal(t, false, httpSource["strict_path"])

	assert.Equal(t, "internal_logs", doc.Sources[InternalSourceKey]["type"])

	console := doc.Sinks[ConsoleSinkKey]
	assert.Equal(t, "console", console["type"])
	assert.ElementsMatch(t, []any{HTTPSourceKey, InternalSourceKey}, console["inputs"])
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	config := NewConfig(fs, "vector.toml")

	st := stream.Stream{Table: "events_app", IngestKey: "secret"}
	sink, err := SinkForStream(st, testDataSource(), RouterKey)
	require.NoError(t, err)
	config.AddSink(sink)

	first, err := config.Encode()
	require.NoError(t, err)
	second, err := config.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestAddSinkUpserts(t *testing.T) {
	t.Parallel()

	config := NewConfig(afero.NewMemMapFs(), "vector.toml")

	sink, err := SinkForStream(stream.Stream{Table: "events", IngestKey: "k"}, testDataSource(), RouterKey)
	require.NoError(t, err)

	config.AddSink(sink)
	config.AddSink(sink)
	assert.Equal(t, []string{ConsoleSinkKey, "sink-events"}, config.SinkKeys())
}

func TestLoadExistingMissingFileBehavesAsReset(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	config := NewConfig(fs, "vector.toml")
	require.NoError(t, config.LoadExisting())

	assert.Len(t, config.SourceKeys(), 2)
	assert.Equal(t, []string{ConsoleSinkKey}, config.SinkKeys())
	assert.Empty(t, config.TransformKeys())
}

func TestLoadExistingAdoptsAndReseedsBaseline(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := `
data_dir = "/custom/dir"

[sources.custom_source]
type = "file"

[sinks.custom_sink]
type = "blackhole"
inputs = ["custom_source"]
`
	require.NoError(t, afero.WriteFile(fs, "vector.toml", []byte(content), 0o644))

	config := NewConfig(fs, "vector.toml")
	require.NoError(t, config.LoadExisting())
	require.NoError(t, config.Save())

	doc := decodeFile(t, fs, "vector.toml")
	assert.Equal(t, "/custom/dir", doc.DataDir)
	assert.Contains(t, doc.Sources, "custom_source")
	assert.Contains(t, doc.Sources, HTTPSourceKey)
	assert.Contains(t, doc.Sources, InternalSourceKey)
	assert.Contains(t, doc.Sinks, "custom_sink")
	assert.Contains(t, doc.Sinks, ConsoleSinkKey)
}

func TestEvictManagedKeepsForeignRecords(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	config := NewConfig(fs, "vector.toml")

	sink, err := SinkForStream(stream.Stream{Table: "events", IngestKey: "k"}, testDataSource(), RouterKey)
	require.NoError(t, err)
	config.AddSink(sink)

	router := NewRouteBuilder(RouterKey)
	require.NoError(t, router.Add("events", PathPredicate("k")))
	config.AddTransform(router.Transform())

	config.EvictManaged(RouterKey)

	assert.Equal(t, []string{ConsoleSinkKey}, config.SinkKeys())
	assert.Empty(t, config.TransformKeys())
	assert.Len(t, config.SourceKeys(), 2)
}

func TestSaveReplacesAtomically(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	config := NewConfig(fs, "out/vector.toml")
	require.NoError(t, config.Save())

	// A second save overwrites the previous document and leaves no temp file
	// behind.
	require.NoError(t, config.Save())

	exists, err := afero.Exists(fs, "out/vector.toml.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	doc := decodeFile(t, fs, "out/vector.toml")
	assert.Len(t, doc.Sources, 2)
}

func TestSaveFailureKeepsPreviousDocument(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	config := NewConfig(base, "vector.toml")
	require.NoError(t, config.Save())

	readonly := NewConfig(afero.NewReadOnlyFs(base), "vector.toml")
	sink, err := SinkForStream(stream.Stream{Table: "events", IngestKey: "k"}, testDataSource(), RouterKey)
	require.NoError(t, err)
	readonly.AddSink(sink)
	require.Error(t, readonly.Save())

	doc := decodeFile(t, base, "vector.toml")
	assert.NotContains(t, doc.Sinks, "sink-events")
}
