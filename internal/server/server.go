// Package server exposes the pipeline over HTTP: collection
// registration, run launching and tracking, schedule and model
// configuration, and a WebSocket feed of progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/pipeline"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Server is the HTTP API over one process-wide event bus and run
// registry. Construct with New.
type Server struct {
	host string
	port int

	bus           *events.Bus
	collections   *CollectionRegistry
	runs          *RunRegistry
	llmConfigPath string

	httpServer *http.Server
}

// Option adjusts a Server during New.
type Option func(*Server)

// WithRunFunc replaces the pipeline runner. Tests use this to avoid
// real pipeline runs.
func WithRunFunc(fn RunFunc) Option {
	return func(s *Server) { s.runs = NewRunRegistry(fn) }
}

// WithLLMConfigPath overrides where PUT /config/llm persists settings.
func WithLLMConfigPath(path string) Option {
	return func(s *Server) { s.llmConfigPath = path }
}

// New builds a server listening on host:port. Runs launched through the
// API execute the full pipeline with events fanning out to every
// WebSocket client.
func New(host string, port int, registry *plugin.Registry, publisher pipeline.ArtifactPublisher, opts ...Option) *Server {
	s := &Server{
		host:        host,
		port:        port,
		bus:         events.NewBus(0),
		collections: NewCollectionRegistry(),
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.llmConfigPath = filepath.Join(home, ".collectivist", "config.yaml")
	}
	s.runs = NewRunRegistry(func(ctx context.Context, root string, runOpts pipeline.Options) (*pipeline.Run, error) {
		p := &pipeline.Pipeline{
			Root:      root,
			Registry:  registry,
			Emitter:   events.NewEmitter(s.bus),
			Publisher: publisher,
		}
		return p.Run(ctx, runOpts)
	})
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(methodNotAllowedHandler)

	r.Get("/health", s.health)
	r.HandleFunc("/ws", s.wsHandler)

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", s.listCollections)
		r.Post("/", s.addCollection)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getCollection)
			r.Put("/", s.updateCollection)
			r.Delete("/", s.removeCollection)
			r.Post("/run", s.launchRun)
			r.Get("/schedule", s.getSchedule)
			r.Put("/schedule", s.putSchedule)
		})
	})

	r.Get("/runs/{id}", s.getRun)

	r.Route("/config/llm", func(r chi.Router) {
		r.Get("/", s.getLLMConfig)
		r.Put("/", s.putLLMConfig)
		r.Post("/test", s.testLLMConfig)
		r.Get("/providers", s.listProviders)
	})

	return r
}

// ListenAndServe blocks serving the API until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Bus exposes the event bus so embedders can attach their own sinks.
func (s *Server) Bus() *events.Bus { return s.bus }

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type collectionRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"collections": s.collections.List()})
}

func (s *Server) addCollection(w http.ResponseWriter, r *http.Request) {
	var body collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if body.Path == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "path is required")
		return
	}
	c, err := s.collections.Add(body.Name, body.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.collections.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	var body collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	c, err := s.collections.Update(chi.URLParam(r, "id"), body.Name, body.Path)
	if err != nil {
		if errors.Is(err, ErrUnknownCollection) {
			writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) removeCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runRequest mirrors the update command's flags.
type runRequest struct {
	SkipOrganic  bool   `json:"skip_organic"`
	SkipAnalyze  bool   `json:"skip_analyze"`
	SkipScan     bool   `json:"skip_scan"`
	SkipDescribe bool   `json:"skip_describe"`
	SkipRender   bool   `json:"skip_render"`
	ForceType    string `json:"force_type,omitempty"`
	MaxWorkers   int    `json:"max_workers,omitempty"`
	Mode         string `json:"mode,omitempty"`
}

func (s *Server) launchRun(w http.ResponseWriter, r *http.Request) {
	c, err := s.collections.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}

	// An empty body is fine; only malformed JSON is rejected.
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	opts := pipeline.Options{
		SkipOrganic:  body.SkipOrganic,
		SkipAnalyze:  body.SkipAnalyze,
		SkipScan:     body.SkipScan,
		SkipDescribe: body.SkipDescribe,
		SkipRender:   body.SkipRender,
		ForceType:    body.ForceType,
		MaxWorkers:   body.MaxWorkers,
		Mode:         collection.ScheduleMode(body.Mode),
	}

	// Runs outlive the request; context.Background is deliberate.
	rec := s.runs.Schedule(context.Background(), c, opts)
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// scheduleBody is the JSON shape of a collection's workflow block.
type scheduleBody struct {
	Enabled             string   `json:"enabled"`
	IntervalDays        int      `json:"interval_days"`
	Operations          []string `json:"operations"`
	AutoFile            bool     `json:"auto_file"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	c, err := s.collections.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	cfg, err := collection.LoadConfig(collection.ConfigPath(c.Path))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no collection config at %s", c.Path))
		return
	}
	writeJSON(w, http.StatusOK, scheduleBody{
		Enabled:             string(cfg.Schedule.Enabled),
		IntervalDays:        cfg.Schedule.IntervalDays,
		Operations:          cfg.Schedule.Operations,
		AutoFile:            cfg.Schedule.AutoFile,
		ConfidenceThreshold: cfg.Schedule.ConfidenceThreshold,
	})
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request) {
	c, err := s.collections.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	configPath := collection.ConfigPath(c.Path)
	cfg, err := collection.LoadConfig(configPath)
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no collection config at %s", c.Path))
		return
	}

	switch collection.ScheduleMode(body.Enabled) {
	case "", collection.ModeManual, collection.ModeScheduled, collection.ModeOrganic:
	default:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "enabled must be manual, scheduled, or organic")
		return
	}

	cfg.Schedule = collection.Schedule{
		Enabled:             collection.ScheduleMode(body.Enabled),
		IntervalDays:        body.IntervalDays,
		Operations:          body.Operations,
		AutoFile:            body.AutoFile,
		ConfidenceThreshold: body.ConfidenceThreshold,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := collection.SaveConfig(cfg, configPath, true); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduleBody{
		Enabled:             string(cfg.Schedule.Enabled),
		IntervalDays:        cfg.Schedule.IntervalDays,
		Operations:          cfg.Schedule.Operations,
		AutoFile:            cfg.Schedule.AutoFile,
		ConfidenceThreshold: cfg.Schedule.ConfidenceThreshold,
	})
}
