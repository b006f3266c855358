package stream

// TypeClickHouse is the only backend type the configuration synthesizer
// supports natively.
const TypeClickHouse = "clickhouse"

// SupportedTypes lists the backend types streams may be provisioned on.
var SupportedTypes = []string{TypeClickHouse}

// Options carries the connection parameters of a data source. URL is the HTTP
// endpoint the shipping agent writes to; User and Password default to the
// backend's defaults when empty.
type Options struct {
	URL      string `yaml:"url" json:"url"`
	Database string `yaml:"dbname" json:"dbname"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// DataSource is a named connection to a columnar analytics backend.
type DataSource struct {
	Name    string  `yaml:"name" json:"name" validate:"required"`
	Type    string  `yaml:"type" json:"type" validate:"required"`
	Options Options `yaml:"options" json:"options"`
}

func (d DataSource) Supported() bool {
	for _, t := range SupportedTypes {
		if d.Type == t {
			return true
		}
	}
	return false
}
