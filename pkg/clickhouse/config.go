package clickhouse

import (
	"crypto/tls"
	"net/url"

	click_house "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"
)

// Config describes a clickhouse connection in terms of the same options the
// shipping agent's sinks use: an HTTP endpoint URL plus database and
// credentials.
type Config struct {
	URL      string
	Database string
	Username string
	Password string
}

// ToClickHouseOptions maps the HTTP endpoint onto clickhouse-go's HTTP
// protocol options.
func (c *Config) ToClickHouseOptions() (*click_house.Options, error) {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse the clickhouse url '%s'", c.URL)
	}

	if parsed.Host == "" {
		return nil, errors.Errorf("the clickhouse url '%s' has no host", c.URL)
	}

	username := c.Username
	if username == "" {
		username = "default"
	}

	opt := click_house.Options{
		Protocol: click_house.HTTP,
		Addr:     []string{parsed.Host},
		Auth: click_house.Auth{
			Database: c.Database,
			Username: username,
			Password: c.Password,
		},
	}
	if parsed.Scheme == "https" {
		opt.TLS = &tls.Config{}
	}

	return &opt, nil
}
