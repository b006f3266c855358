package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/streamhouse/streamsync/pkg/logger"
	"github.com/streamhouse/streamsync/pkg/preset"
	"github.com/streamhouse/streamsync/pkg/query"
	"github.com/streamhouse/streamsync/pkg/stream"
	"github.com/streamhouse/streamsync/pkg/vector"
)

// tablePlaceholder is the token preset DDL templates use for the stream's
// destination table name.
const tablePlaceholder = "{db_table}"

type StreamLister interface {
	ListActive(ctx context.Context) ([]stream.Stream, error)
}

type QueryExecutor interface {
	RunQueryWithoutResult(ctx context.Context, q *query.Query) error
}

// ExecutorResolver returns the query executor of a data source by name.
type ExecutorResolver func(name string) (QueryExecutor, error)

type DataSourceResolver interface {
	DataSource(name string) (*stream.DataSource, error)
}

// Syncer reacts to stream lifecycle events by provisioning destination tables
// and regenerating the shipping agent's configuration document from the full
// current stream set. Regeneration is always a complete recomputation; the
// stream registry is the single source of truth and there is no delta state
// to drift.
type Syncer struct {
	mu sync.Mutex

	logger      logger.Logger
	presets     *preset.Loader
	streams     StreamLister
	dataSources DataSourceResolver
	resolve     ExecutorResolver
	config      *vector.Config

	routerKey string
}

func NewSyncer(
	log logger.Logger,
	presets *preset.Loader,
	streams StreamLister,
	dataSources DataSourceResolver,
	resolve ExecutorResolver,
	config *vector.Config,
) *Syncer {
	return &Syncer{
		logger:      log,
		presets:     presets,
		streams:     streams,
		dataSources: dataSources,
		resolve:     resolve,
		config:      config,
		routerKey:   vector.RouterKey,
	}
}

// StreamCreated provisions the destination table of a freshly created stream
// and regenerates the configuration document. Provisioning failures are
// logged and do not block regeneration; an operator can create the table out
// of band and the sink will already be in place.
func (s *Syncer) StreamCreated(ctx context.Context, st stream.Stream) error {
	s.provision(ctx, st)
	return s.SyncAll(ctx, false)
}

func (s *Syncer) provision(ctx context.Context, st stream.Stream) {
	ds, err := s.dataSources.DataSource(st.DataSource)
	if err != nil {
		s.logger.Warnf("skipping table provisioning for stream '%s': %v", st.Table, err)
		return
	}

	if !ds.Supported() {
		s.logger.Warnf("skipping table provisioning for stream '%s': data source type '%s' is not supported", st.Table, ds.Type)
		return
	}

	ddl, err := s.presets.Get(ds.Type, st.Preset)
	if err != nil {
		s.logger.Warnf("skipping table provisioning for stream '%s': %v", st.Table, err)
		return
	}

	executor, err := s.resolve(st.DataSource)
	if err != nil {
		s.logger.Warnf("skipping table provisioning for stream '%s': %v", st.Table, err)
		return
	}

	q := query.Query{Query: strings.ReplaceAll(ddl, tablePlaceholder, st.Table)}
	if err := executor.RunQueryWithoutResult(ctx, &q); err != nil {
		s.logger.Warnf("failed to provision the table for stream '%s': %v", st.Table, err)
		return
	}

	s.logger.Infof("provisioned table '%s' on data source '%s'", st.Table, st.DataSource)
}

// SyncAll regenerates the full configuration document from the current set of
// enabled, non-archived streams on supported backend types. Passes are
// serialized; a concurrent trigger waits rather than racing the file write
// with a stale stream set.
//
// Per-stream problems (unknown data source, incomplete connection options)
// are logged and exclude only that stream. A route or sink key collision or a
// serialization/filesystem failure aborts the pass and leaves the previous
// on-disk document untouched.
func (s *Syncer) SyncAll(ctx context.Context, clean bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	streams, err := s.streams.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list the active streams")
	}

	if clean {
		s.config.Reset()
	} else {
		if err := s.config.LoadExisting(); err != nil {
			return err
		}
		s.config.EvictManaged(s.routerKey)
	}

	router := vector.NewRouteBuilder(s.routerKey)
	internal, external := splitInternal(streams)
	sinkOwners := map[string]string{}

	for _, st := range external {
		ds, err := s.dataSources.DataSource(st.DataSource)
		if err != nil {
			s.logger.Warnf("skipping stream '%s': %v", st.Table, err)
			continue
		}

		if !ds.Supported() {
			s.logger.Debugf("skipping stream '%s': data source type '%s' is not supported", st.Table, ds.Type)
			continue
		}

		sink, err := vector.SinkForStream(st, *ds, s.routerKey)
		if errors.Is(err, vector.ErrMissingOption) {
			s.logger.Warnf("skipping stream '%s': %v", st.Table, err)
			continue
		}
		if err != nil {
			return err
		}

		if err := router.Add(vector.RouteKey(st.Table), vector.PathPredicate(st.IngestKey)); err != nil {
			return err
		}

		if err := claimSinkKey(sinkOwners, sink.SectionKey(), st); err != nil {
			return err
		}
		s.config.AddSink(sink)
	}

	for _, st := range internal {
		ds, err := s.dataSources.DataSource(st.DataSource)
		if err != nil {
			s.logger.Warnf("skipping internal stream '%s': %v", st.Table, err)
			continue
		}

		if !ds.Supported() {
			s.logger.Debugf("skipping internal stream '%s': data source type '%s' is not supported", st.Table, ds.Type)
			continue
		}

		sink, err := vector.SinkForInternalStream(st, *ds)
		if errors.Is(err, vector.ErrMissingOption) {
			s.logger.Warnf("skipping internal stream '%s': %v", st.Table, err)
			continue
		}
		if err != nil {
			return err
		}

		if err := claimSinkKey(sinkOwners, sink.SectionKey(), st); err != nil {
			return err
		}
		s.config.AddSink(sink)
	}

	if router.Len() > 0 {
		s.config.AddTransform(router.Transform())
	}

	if err := s.config.Save(); err != nil {
		return err
	}

	s.logger.Infof("wrote the agent configuration for %d streams to %s", len(streams), s.config.Path())
	return nil
}

// claimSinkKey rejects a sink key already emitted in this pass. The route
// builder only guards routed streams; an internal stream whose table
// normalizes to the same key as another stream's would otherwise overwrite
// that sink and leave its events without a consumer.
func claimSinkKey(owners map[string]string, key string, st stream.Stream) error {
	owner := st.DataSource + "/" + st.Table
	if existing, ok := owners[key]; ok {
		return errors.Wrapf(vector.ErrSinkCollision,
			"sink key '%s' is claimed by both %s and %s", key, existing, owner)
	}

	owners[key] = owner
	return nil
}

func splitInternal(streams []stream.Stream) (internal, external []stream.Stream) {
	internal = lo.Filter(streams, func(st stream.Stream, _ int) bool { return st.Internal() })
	external = lo.Filter(streams, func(st stream.Stream, _ int) bool { return !st.Internal() })
	return internal, external
}
