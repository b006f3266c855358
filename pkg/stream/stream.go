package stream

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// InternalPresetPrefix marks presets that describe the system's own
// operational telemetry. Streams using them are fed from the agent's internal
// telemetry source instead of the shared HTTP ingest route.
const InternalPresetPrefix = "_"

const DefaultPreset = "app_events"

// Stream is one ingestion endpoint: events posted to its ingest URL end up in
// a single table on its data source.
type Stream struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	DataSource  string    `db:"data_source" json:"data_source"`
	IngestKey   string    `db:"ingest_key" json:"ingest_key"`
	Table       string    `db:"db_table" json:"db_table"`
	Preset      string    `db:"db_table_preset" json:"db_table_preset"`
	Enabled     bool      `db:"is_enabled" json:"is_enabled"`
	Archived    bool      `db:"is_archived" json:"is_archived"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Internal reports whether the stream carries system telemetry rather than
// tenant events.
func (s Stream) Internal() bool {
	return strings.HasPrefix(s.Preset, InternalPresetPrefix)
}

// IngestURL is the public endpoint events should be posted to. The ingest key
// acts as the bearer secret, there is no separate authentication.
func (s Stream) IngestURL(baseURL string) string {
	return fmt.Sprintf("%s/ingest/%s", strings.TrimSuffix(baseURL, "/"), s.IngestKey)
}

// IngestExample renders a ready-to-paste curl command for the given example
// payload, typically the one shipped with the stream's preset.
func (s Stream) IngestExample(baseURL string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal the example payload")
	}

	return strings.Join([]string{
		`curl -X POST -H "Content-Type: application/json" \`,
		fmt.Sprintf("-d '%s' \\", string(body)),
		s.IngestURL(baseURL),
	}, "\n"), nil
}

// NewIngestKey generates an unguessable url-safe ingest key.
func NewIngestKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate an ingest key")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
