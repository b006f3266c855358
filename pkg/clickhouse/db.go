package clickhouse

import (
	"context"

	click_house "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"

	"github.com/streamhouse/streamsync/pkg/query"
)

// Client executes statements against one clickhouse data source. The
// synthesis engine uses it to provision destination tables; the results
// endpoint uses it for reads.
type Client struct {
	connection connection
	config     *Config
}

type connection interface {
	Query(ctx context.Context, sql string, args ...any) (driver.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) error
}

func NewClient(c *Config) (*Client, error) {
	opts, err := c.ToClickHouseOptions()
	if err != nil {
		return nil, err
	}

	conn, err := click_house.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open the clickhouse connection")
	}

	return &Client{connection: conn, config: c}, nil
}

func (c *Client) RunQueryWithoutResult(ctx context.Context, query *query.Query) error {
	if query.IsEmpty() {
		return errors.New("the query is empty")
	}

	err := c.connection.Exec(ctx, query.String())
	if err != nil {
		return errors.Wrap(err, "failed to execute the query")
	}

	return nil
}

// Select runs a query and returns the results.
func (c *Client) Select(ctx context.Context, query *query.Query) ([][]interface{}, error) {
	if query.IsEmpty() {
		return nil, errors.New("the query is empty")
	}

	rows, err := c.connection.Query(ctx, query.String())
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	collectedRows := make([][]interface{}, 0)
	for rows.Next() {
		result := make([]interface{}, len(rows.Columns()))
		if err := rows.Scan(result...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		collectedRows = append(collectedRows, result)
	}

	return collectedRows, nil
}

// Ping runs a simple query (SELECT 1) to validate the connection.
func (c *Client) Ping(ctx context.Context) error {
	q := query.Query{Query: "SELECT 1"}
	err := c.RunQueryWithoutResult(ctx, &q)
	if err != nil {
		return errors.Wrap(err, "failed to run the test query on the clickhouse connection")
	}

	return nil
}
