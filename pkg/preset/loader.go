package preset

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrPresetNotFound is returned when a backend type or preset name is not
// registered. Callers are expected to treat this as a configuration problem
// for the stream in question, not a fatal condition.
var ErrPresetNotFound = errors.New("preset not found")

var sqlCommentRegex = regexp.MustCompile(`(?m)(?s)/\*.*?\*/|(^|\s)--.*?(\n|$)`)
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Loader holds the DDL templates and example payloads for all supported
// backend types. It scans the immediate subdirectories of a base path, each
// subdirectory name being a backend type; every `*.sql` file inside becomes a
// preset keyed by its filename stem, every `*.json` file an example payload
// under the same key.
//
// A Loader is immutable after LoadAll and safe for concurrent readers.
type Loader struct {
	fs       afero.Fs
	basePath string

	loadOnce sync.Once
	loadErr  error
	presets  map[string]map[string]string
	examples map[string]map[string]map[string]any
}

func NewLoader(fs afero.Fs, basePath string) *Loader {
	return &Loader{
		fs:       fs,
		basePath: basePath,
		presets:  map[string]map[string]string{},
		examples: map[string]map[string]map[string]any{},
	}
}

// LoadAll scans the base path once; subsequent calls are no-ops.
func (l *Loader) LoadAll() error {
	l.loadOnce.Do(func() {
		l.loadErr = l.loadAll()
	})
	return l.loadErr
}

func (l *Loader) loadAll() error {
	entries, err := afero.ReadDir(l.fs, l.basePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read the presets directory %s", l.basePath)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if err := l.loadDir(entry.Name()); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) loadDir(backendType string) error {
	dir := filepath.Join(l.basePath, backendType)
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read the preset directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		content, err := afero.ReadFile(l.fs, filepath.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "failed to read the preset file %s", name)
		}

		switch filepath.Ext(name) {
		case ".sql":
			group, ok := l.presets[backendType]
			if !ok {
				group = map[string]string{}
				l.presets[backendType] = group
			}
			group[stem] = normalizeSQL(string(content))
		case ".json":
			var example map[string]any
			if err := json.Unmarshal(content, &example); err != nil {
				return errors.Wrapf(err, "failed to parse the example payload %s", name)
			}
			group, ok := l.examples[backendType]
			if !ok {
				group = map[string]map[string]any{}
				l.examples[backendType] = group
			}
			group[stem] = example
		}
	}

	return nil
}

// Get returns the DDL template for the given backend type and preset name.
func (l *Loader) Get(backendType, name string) (string, error) {
	group, ok := l.presets[backendType]
	if !ok {
		return "", errors.Wrapf(ErrPresetNotFound, "no presets for backend type '%s'", backendType)
	}

	text, ok := group[name]
	if !ok {
		return "", errors.Wrapf(ErrPresetNotFound, "no preset '%s' for backend type '%s'", name, backendType)
	}

	return text, nil
}

// Example returns the example ingest payload paired with a preset, if any.
func (l *Loader) Example(backendType, name string) (map[string]any, error) {
	group, ok := l.examples[backendType]
	if !ok {
		return nil, errors.Wrapf(ErrPresetNotFound, "no examples for backend type '%s'", backendType)
	}

	example, ok := group[name]
	if !ok {
		return nil, errors.Wrapf(ErrPresetNotFound, "no example '%s' for backend type '%s'", name, backendType)
	}

	return example, nil
}

// BackendTypes lists the backend types that have at least one preset loaded.
func (l *Loader) BackendTypes() []string {
	types := make([]string, 0, len(l.presets))
	for t := range l.presets {
		types = append(types, t)
	}
	return types
}

// Names lists the preset names loaded for a backend type.
func (l *Loader) Names(backendType string) []string {
	names := make([]string, 0, len(l.presets[backendType]))
	for n := range l.presets[backendType] {
		names = append(names, n)
	}
	return names
}

func normalizeSQL(text string) string {
	text = sqlCommentRegex.ReplaceAllLiteralString(text, "\n")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllLiteralString(text, " "))
}
