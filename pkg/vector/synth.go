package vector

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/streamhouse/streamsync/pkg/stream"
)

var (
	// ErrMissingOption marks a data source whose connection options are
	// incomplete. The affected stream is skipped, the rest of the pass
	// continues.
	ErrMissingOption = errors.New("missing connection option")

	// ErrRouteCollision marks two streams resolving to the same route key.
	// Emitting the document would silently misroute one of them, so the whole
	// pass must be aborted instead.
	ErrRouteCollision = errors.New("route key collision")

	// ErrSinkCollision marks two streams resolving to the same sink key.
	// Route keys only cover routed streams; internal streams can still claim
	// a sink key an external stream already owns.
	ErrSinkCollision = errors.New("sink key collision")
)

// RouteKey normalizes a destination table name into an identifier-safe token
// shared by a stream's route rule and its sink key.
func RouteKey(table string) string {
	return strings.NewReplacer("_", "-", ".", "-").Replace(table)
}

// SinkKey derives the sink name for a destination table.
func SinkKey(table string) string {
	return SinkPrefix + RouteKey(table)
}

// PathPredicate matches events whose ingest path carries the stream's secret
// key. Routing on the unguessable key, rather than a table-derived path,
// keeps the ingest endpoint from being enumerable.
func PathPredicate(ingestKey string) string {
	return fmt.Sprintf(`.%s == "/ingest/%s"`, PathKey, ingestKey)
}

// RouteBuilder accumulates the per-stream routing rules of one synthesis pass
// and is finalized into the single shared route transform at the end.
type RouteBuilder struct {
	key    string
	routes map[string]string
}

func NewRouteBuilder(key string) *RouteBuilder {
	return &RouteBuilder{key: key, routes: map[string]string{}}
}

func (b *RouteBuilder) Add(routeKey, predicate string) error {
	// The predicate carries the stream's ingest key, so the error reports
	// the route key only.
	if _, ok := b.routes[routeKey]; ok {
		return errors.Wrapf(ErrRouteCollision, "route '%s' is already registered by another stream", routeKey)
	}

	b.routes[routeKey] = predicate
	return nil
}

func (b *RouteBuilder) Len() int {
	return len(b.routes)
}

// Transform finalizes the accumulated rules into the route transform bound to
// the shared HTTP source.
func (b *RouteBuilder) Transform() RouteTransform {
	routes := make(map[string]string, len(b.routes))
	for key, predicate := range b.routes {
		routes[key] = predicate
	}

	return RouteTransform{
		Key:    b.key,
		Type:   "route",
		Inputs: []string{HTTPSourceKey},
		Route:  routes,
	}
}

// SinkForStream builds the clickhouse sink of a non-internal stream, fed by
// the route transform's sub-route for that stream.
func SinkForStream(st stream.Stream, ds stream.DataSource, routerKey string) (ClickHouseSink, error) {
	sink, err := baseSink(st, ds)
	if err != nil {
		return ClickHouseSink{}, err
	}

	sink.Inputs = []string{fmt.Sprintf("%s.%s", routerKey, RouteKey(st.Table))}
	return sink, nil
}

// SinkForInternalStream builds the sink of an internal telemetry stream, fed
// directly from the internal source instead of the HTTP route.
func SinkForInternalStream(st stream.Stream, ds stream.DataSource) (ClickHouseSink, error) {
	sink, err := baseSink(st, ds)
	if err != nil {
		return ClickHouseSink{}, err
	}

	sink.Inputs = []string{InternalSourceKey}
	return sink, nil
}

func baseSink(st stream.Stream, ds stream.DataSource) (ClickHouseSink, error) {
	opts := ds.Options
	if opts.URL == "" {
		return ClickHouseSink{}, errors.Wrapf(ErrMissingOption, "data source '%s' has no url", ds.Name)
	}

	if opts.Database == "" {
		return ClickHouseSink{}, errors.Wrapf(ErrMissingOption, "data source '%s' has no dbname", ds.Name)
	}

	auth := ClickHouseAuth{Strategy: "basic", User: opts.User, Password: opts.Password}
	if auth.User == "" {
		auth.User = "default"
	}

	return ClickHouseSink{
		Key:      SinkKey(st.Table),
		Type:     "clickhouse",
		Endpoint: opts.URL,
		Database: opts.Database,
		Table:    st.Table,
		Auth:     auth,
		Encoding: SinkEncoding{TimestampFormat: "rfc3339"},
	}, nil
}
