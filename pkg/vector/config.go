package vector

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Config owns the in-memory configuration document of the shipping agent and
// its on-disk representation. It is not safe for concurrent use; callers
// serialize synthesis passes around it.
type Config struct {
	fs   afero.Fs
	path string

	dataDir    string
	apiEnabled bool
	sources    map[string]any
	transforms map[string]any
	sinks      map[string]any
}

// document is the serialized shape of the file. Plain values come before the
// section tables so the TOML encoder emits a valid document.
type document struct {
	DataDir    string         `toml:"data_dir"`
	API        apiSettings    `toml:"api"`
	Sources    map[string]any `toml:"sources"`
	Transforms map[string]any `toml:"transforms,omitempty"`
	Sinks      map[string]any `toml:"sinks"`
}

type apiSettings struct {
	Enabled bool `toml:"enabled"`
}

func NewConfig(fs afero.Fs, path string) *Config {
	c := &Config{fs: fs, path: path}
	c.Reset()
	return c
}

func (c *Config) Path() string {
	return c.path
}

// Reset discards every section and re-seeds the baseline pipeline.
func (c *Config) Reset() {
	c.dataDir = defaultDataDir
	c.apiEnabled = true
	c.sources = map[string]any{}
	c.transforms = map[string]any{}
	c.sinks = map[string]any{}

	c.AddSource(NewInternalSource())
	c.AddSource(NewHTTPSource())
	c.AddSink(NewConsoleSink())
}

// LoadExisting adopts the document currently on disk, for incremental
// updates. A missing file behaves like Reset. The baseline sections are
// re-seeded either way so a hand-edited file cannot drop them.
func (c *Config) LoadExisting() error {
	exists, err := afero.Exists(c.fs, c.path)
	if err != nil {
		return errors.Wrapf(err, "failed to check the configuration file %s", c.path)
	}

	if !exists {
		c.Reset()
		return nil
	}

	content, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read the configuration file %s", c.path)
	}

	var doc document
	if err := toml.Unmarshal(content, &doc); err != nil {
		return errors.Wrapf(err, "failed to parse the configuration file %s", c.path)
	}

	c.dataDir = doc.DataDir
	if c.dataDir == "" {
		c.dataDir = defaultDataDir
	}
	c.apiEnabled = doc.API.Enabled

	c.sources = doc.Sources
	c.transforms = doc.Transforms
	c.sinks = doc.Sinks
	if c.sources == nil {
		c.sources = map[string]any{}
	}
	if c.transforms == nil {
		c.transforms = map[string]any{}
	}
	if c.sinks == nil {
		c.sinks = map[string]any{}
	}

	c.AddSource(NewInternalSource())
	c.AddSource(NewHTTPSource())
	c.AddSink(NewConsoleSink())

	return nil
}

// EvictManaged removes every record the synthesizer owns: the route transform
// and all sinks under the sink namespace prefix. Records added by operators
// outside that namespace survive incremental regeneration.
func (c *Config) EvictManaged(routerKey string) {
	delete(c.transforms, routerKey)
	for key := range c.sinks {
		if strings.HasPrefix(key, SinkPrefix) {
			delete(c.sinks, key)
		}
	}
}

func (c *Config) AddSource(source Section) {
	c.sources[source.SectionKey()] = source
}

func (c *Config) AddTransform(transform Section) {
	c.transforms[transform.SectionKey()] = transform
}

func (c *Config) AddSink(sink Section) {
	c.sinks[sink.SectionKey()] = sink
}

func (c *Config) SourceKeys() []string    { return sortedKeys(c.sources) }
func (c *Config) TransformKeys() []string { return sortedKeys(c.transforms) }
func (c *Config) SinkKeys() []string      { return sortedKeys(c.sinks) }

// Encode serializes the document. Section keys are emitted in sorted order,
// so the output is deterministic for a given stream set.
func (c *Config) Encode() ([]byte, error) {
	doc := document{
		DataDir:    c.dataDir,
		API:        apiSettings{Enabled: c.apiEnabled},
		Sources:    c.sources,
		Transforms: c.transforms,
		Sinks:      c.sinks,
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode the configuration document")
	}

	return buf.Bytes(), nil
}

// Save atomically replaces the on-disk document: the content is written to a
// temporary file next to the destination and renamed over it, so a crash
// mid-write leaves the previous document intact.
func (c *Config) Save() error {
	content, err := c.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create the configuration directory %s", dir)
	}

	tmpPath := fmt.Sprintf("%s.tmp", c.path)
	if err := afero.WriteFile(c.fs, tmpPath, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write the configuration file %s", tmpPath)
	}

	if err := c.fs.Rename(tmpPath, c.path); err != nil {
		return errors.Wrapf(err, "failed to replace the configuration file %s", c.path)
	}

	return nil
}

func sortedKeys(group map[string]any) []string {
	keys := make([]string, 0, len(group))
	for key := range group {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
