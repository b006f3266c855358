package stream

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ErrStreamNotFound is returned when a stream id or ingest key does not match
// any row.
var ErrStreamNotFound = errors.New("stream not found")

// ErrStreamExists is returned when a new stream violates the registry's
// uniqueness rules, one stream per (data_source, db_table) pair and one row
// per ingest key.
var ErrStreamExists = errors.New("stream already exists")

// Store is the durable registry of streams, backed by the application's
// Postgres metadata database. The synthesis engine only reads from it; writes
// happen through administrative actions.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func Connect(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open the streams database")
	}

	return NewStore(db), nil
}

const createQuery = `
INSERT INTO streams
	(id, name, description, data_source, ingest_key, db_table, db_table_preset, is_enabled, is_archived, created_at, updated_at)
VALUES
	(:id, :name, :description, :data_source, :ingest_key, :db_table, :db_table_preset, :is_enabled, :is_archived, :created_at, :updated_at)`

func (s *Store) Create(ctx context.Context, st *Stream) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	if st.IngestKey == "" {
		key, err := NewIngestKey()
		if err != nil {
			return err
		}
		st.IngestKey = key
	}

	if st.Preset == "" {
		st.Preset = DefaultPreset
	}

	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, createQuery, st)
	if isUniqueViolation(err) {
		return errors.Wrapf(ErrStreamExists, "a stream for table '%s' on data source '%s' already exists", st.Table, st.DataSource)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to create the stream for table '%s'", st.Table)
	}

	return nil
}

// isUniqueViolation matches the postgres unique_violation error, code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Stream, error) {
	var st Stream
	err := s.db.GetContext(ctx, &st, "SELECT * FROM streams WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrStreamNotFound, "no stream with id '%s'", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch the stream")
	}

	return &st, nil
}

func (s *Store) GetByIngestKey(ctx context.Context, key string) (*Stream, error) {
	var st Stream
	err := s.db.GetContext(ctx, &st, "SELECT * FROM streams WHERE ingest_key = $1 AND NOT is_archived", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStreamNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch the stream")
	}

	return &st, nil
}

func (s *Store) List(ctx context.Context) ([]Stream, error) {
	streams := make([]Stream, 0)
	err := s.db.SelectContext(ctx, &streams, "SELECT * FROM streams WHERE NOT is_archived ORDER BY created_at")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list streams")
	}

	return streams, nil
}

// ListActive returns the streams the synthesis engine should emit
// configuration for: enabled and not archived. Filtering by backend type
// happens in the synthesis pass, where the data source definitions live.
func (s *Store) ListActive(ctx context.Context) ([]Stream, error) {
	streams := make([]Stream, 0)
	err := s.db.SelectContext(ctx, &streams,
		"SELECT * FROM streams WHERE is_enabled AND NOT is_archived ORDER BY created_at")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active streams")
	}

	return streams, nil
}

func (s *Store) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE streams SET is_enabled = $1, updated_at = $2 WHERE id = $3", enabled, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update the stream")
	}

	return ensureOneRow(res)
}

func (s *Store) Archive(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "UPDATE streams SET is_archived = TRUE, updated_at = $1 WHERE id = $2", time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to archive the stream")
	}

	return ensureOneRow(res)
}

func ensureOneRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check the affected rows")
	}

	if count == 0 {
		return ErrStreamNotFound
	}

	return nil
}
