package vector

// Well-known keys of the baseline pipeline. Every generated document carries
// exactly one HTTP ingest source, one internal telemetry source and one
// console sink; per-stream routes and sinks are layered on top of these.
const (
	HTTPSourceKey     = "http_server"
	InternalSourceKey = "vector_internal_logs"
	ConsoleSinkKey    = "console"
	RouterKey         = "http_router"
	PathKey           = "_path_"
	SinkPrefix        = "sink-"
)

const (
	defaultDataDir     = "/var/lib/vector"
	defaultHTTPAddress = "0.0.0.0:8180"
	defaultIngestPath  = "/ingest"
)

// Section is one named record inside the sources, transforms or sinks group
// of the document. The key is not serialized, it becomes the record's name in
// the group.
type Section interface {
	SectionKey() string
}

type Codec struct {
	Codec string `toml:"codec"`
}

// HTTPSource is the shared listener all non-internal streams ingest through.
type HTTPSource struct {
	Key        string `toml:"-"`
	Type       string `toml:"type"`
	Address    string `toml:"address"`
	Method     string `toml:"method"`
	Path       string `toml:"path"`
	PathKey    string `toml:"path_key"`
	StrictPath bool   `toml:"strict_path"`
	Decoding   Codec  `toml:"decoding"`
}

func (s HTTPSource) SectionKey() string { return s.Key }

func NewHTTPSource() HTTPSource {
	return HTTPSource{
		Key:        HTTPSourceKey,
		Type:       "http_server",
		Address:    defaultHTTPAddress,
		Method:     "POST",
		Path:       defaultIngestPath,
		PathKey:    PathKey,
		StrictPath: false,
		Decoding:   Codec{Codec: "json"},
	}
}

// InternalSource exposes the agent's own telemetry as a pipeline input.
type InternalSource struct {
	Key  string `toml:"-"`
	Type string `toml:"type"`
}

func (s InternalSource) SectionKey() string { return s.Key }

func NewInternalSource() InternalSource {
	return InternalSource{Key: InternalSourceKey, Type: "internal_logs"}
}

// ConsoleSink is the always-present fallback so the agent has at least one
// working pipeline even with zero streams configured.
type ConsoleSink struct {
	Key      string   `toml:"-"`
	Type     string   `toml:"type"`
	Inputs   []string `toml:"inputs"`
	Encoding Codec    `toml:"encoding"`
}

func (s ConsoleSink) SectionKey() string { return s.Key }

func NewConsoleSink() ConsoleSink {
	return ConsoleSink{
		Key:      ConsoleSinkKey,
		Type:     "console",
		Inputs:   []string{HTTPSourceKey, InternalSourceKey},
		Encoding: Codec{Codec: "json"},
	}
}

// RouteTransform dispatches events from the HTTP source to per-stream sinks
// by matching the request path against each stream's ingest path.
type RouteTransform struct {
	Key    string            `toml:"-"`
	Type   string            `toml:"type"`
	Inputs []string          `toml:"inputs"`
	Route  map[string]string `toml:"route"`
}

func (t RouteTransform) SectionKey() string { return t.Key }

// ClickHouseAuth mirrors the agent's basic-auth block for clickhouse sinks.
type ClickHouseAuth struct {
	Strategy string `toml:"strategy"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type SinkEncoding struct {
	TimestampFormat string `toml:"timestamp_format"`
}

// ClickHouseSink writes matched events into one table of a data source.
type ClickHouseSink struct {
	Key      string         `toml:"-"`
	Type     string         `toml:"type"`
	Inputs   []string       `toml:"inputs"`
	Endpoint string         `toml:"endpoint"`
	Database string         `toml:"database"`
	Table    string         `toml:"table"`
	Auth     ClickHouseAuth `toml:"auth"`
	Encoding SinkEncoding   `toml:"encoding"`
}

func (s ClickHouseSink) SectionKey() string { return s.Key }
