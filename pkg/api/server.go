package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/streamhouse/streamsync/pkg/config"
	"github.com/streamhouse/streamsync/pkg/logger"
	"github.com/streamhouse/streamsync/pkg/preset"
	"github.com/streamhouse/streamsync/pkg/query"
	"github.com/streamhouse/streamsync/pkg/stream"
)

const maxResultRows = 1000

type streamStore interface {
	Create(ctx context.Context, st *stream.Stream) error
	Get(ctx context.Context, id uuid.UUID) (*stream.Stream, error)
	GetByIngestKey(ctx context.Context, key string) (*stream.Stream, error)
	List(ctx context.Context) ([]stream.Stream, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Archive(ctx context.Context, id uuid.UUID) error
}

type syncer interface {
	StreamCreated(ctx context.Context, st stream.Stream) error
	SyncAll(ctx context.Context, clean bool) error
}

// Selector reads rows back from a data source.
type Selector interface {
	Select(ctx context.Context, q *query.Query) ([][]interface{}, error)
}

// SelectorResolver returns the reading client of a data source by name.
type SelectorResolver func(name string) (Selector, error)

// Server exposes the administrative stream API and the public ingest-key
// endpoints.
type Server struct {
	logger   logger.Logger
	settings *config.Settings
	presets  *preset.Loader
	store    streamStore
	syncer   syncer
	resolve  SelectorResolver
}

func NewServer(
	log logger.Logger,
	settings *config.Settings,
	presets *preset.Loader,
	store streamStore,
	sync syncer,
	resolve SelectorResolver,
) *Server {
	return &Server{
		logger:   log,
		settings: settings,
		presets:  presets,
		store:    store,
		syncer:   sync,
		resolve:  resolve,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.POST("/streams", s.createStream)
	api.GET("/streams", s.listStreams)
	api.POST("/streams/:id/enable", s.setEnabled(true))
	api.POST("/streams/:id/disable", s.setEnabled(false))
	api.POST("/streams/:id/archive", s.archiveStream)

	router.GET("/public/streams/:key/example", s.ingestExample)
	router.GET("/public/streams/:key/results", s.streamResults)

	return router
}

type createStreamRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	DataSource  string `json:"data_source" binding:"required"`
	Table       string `json:"db_table" binding:"required"`
	Preset      string `json:"db_table_preset"`
}

type streamResponse struct {
	stream.Stream
	IngestURL     string `json:"ingest_url"`
	IngestExample string `json:"ingest_example,omitempty"`
}

func (s *Server) createStream(c *gin.Context) {
	var req createStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, err := s.settings.DataSource(req.DataSource)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !ds.Supported() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the data source type '" + ds.Type + "' does not support stream ingestion"})
		return
	}

	presetName := req.Preset
	if presetName == "" {
		presetName = stream.DefaultPreset
	}

	if _, err := s.presets.Get(ds.Type, presetName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := stream.Stream{
		Name:        req.Name,
		Description: req.Description,
		DataSource:  req.DataSource,
		Table:       req.Table,
		Preset:      presetName,
		Enabled:     true,
	}
	if err := s.store.Create(c.Request.Context(), &st); err != nil {
		if errors.Is(err, stream.ErrStreamExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create the stream"})
		s.logger.Errorf("failed to create the stream for table '%s': %v", req.Table, err)
		return
	}

	if err := s.syncer.StreamCreated(c.Request.Context(), st); err != nil {
		s.logger.Errorf("failed to regenerate the agent configuration after creating stream '%s': %v", st.Table, err)
	}

	c.JSON(http.StatusCreated, s.toResponse(st))
}

func (s *Server) listStreams(c *gin.Context) {
	streams, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list streams"})
		s.logger.Errorf("failed to list streams: %v", err)
		return
	}

	responses := make([]streamResponse, 0, len(streams))
	for _, st := range streams {
		responses = append(responses, s.toResponse(st))
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) setEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
			return
		}

		if err := s.store.SetEnabled(c.Request.Context(), id, enabled); err != nil {
			s.respondStoreError(c, err)
			return
		}

		s.resync(c)
	}
}

func (s *Server) archiveStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}

	if err := s.store.Archive(c.Request.Context(), id); err != nil {
		s.respondStoreError(c, err)
		return
	}

	s.resync(c)
}

func (s *Server) resync(c *gin.Context) {
	if err := s.syncer.SyncAll(c.Request.Context(), false); err != nil {
		s.logger.Errorf("failed to regenerate the agent configuration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to regenerate the ingest configuration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, stream.ErrStreamNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	s.logger.Errorf("stream update failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update the stream"})
}

// lookupByKey resolves a stream by its ingest key. The key is the only
// credential for the public endpoints, so the final check compares it in
// constant time.
func (s *Server) lookupByKey(c *gin.Context) (*stream.Stream, bool) {
	key := c.Param("key")
	st, err := s.store.GetByIngestKey(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, stream.ErrStreamNotFound) {
			s.logger.Errorf("ingest key lookup failed: %v", err)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}

	if subtle.ConstantTimeCompare([]byte(st.IngestKey), []byte(key)) != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}

	return st, true
}

func (s *Server) ingestExample(c *gin.Context) {
	st, ok := s.lookupByKey(c)
	if !ok {
		return
	}

	ds, err := s.settings.DataSource(st.DataSource)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	payload, err := s.presets.Example(ds.Type, st.Preset)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no example available"})
		return
	}

	curl, err := st.IngestExample(s.settings.IngestBaseURL, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render the example"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payload": payload, "curl": curl})
}

// streamResults returns the latest rows of a stream's destination table. A
// backend failure is reported generically; the underlying message may contain
// connection details and is only logged.
func (s *Server) streamResults(c *gin.Context) {
	st, ok := s.lookupByKey(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxResultRows {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 1000"})
			return
		}
		limit = parsed
	}

	client, err := s.resolve(st.DataSource)
	if err != nil {
		s.logger.Errorf("failed to resolve the data source for stream '%s': %v", st.Table, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query execution failed"})
		return
	}

	q := query.Query{Query: "SELECT * FROM " + st.Table + " ORDER BY timestamp DESC LIMIT " + strconv.Itoa(limit)}
	rows, err := client.Select(c.Request.Context(), &q)
	if err != nil {
		s.logger.Errorf("failed to query results for stream '%s': %v", st.Table, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query execution failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) toResponse(st stream.Stream) streamResponse {
	resp := streamResponse{Stream: st, IngestURL: st.IngestURL(s.settings.IngestBaseURL)}

	ds, err := s.settings.DataSource(st.DataSource)
	if err != nil {
		return resp
	}

	payload, err := s.presets.Example(ds.Type, st.Preset)
	if err != nil {
		return resp
	}

	if curl, err := st.IngestExample(s.settings.IngestBaseURL, payload); err == nil {
		resp.IngestExample = curl
	}

	return resp
}
