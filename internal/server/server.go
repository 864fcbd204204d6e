// Package server exposes property sheets over HTTP. Clients open a source
// for a sample object, read its attribute tree, write attributes through a
// shared undo history, and follow lazy-value completions over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/auth"
	"github.com/conduit-lang/propsheet/internal/catalog"
	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/edit"
	"github.com/conduit-lang/propsheet/internal/notify"
	"github.com/conduit-lang/propsheet/internal/property"
	"github.com/conduit-lang/propsheet/internal/source"
)

// Config holds server configuration
type Config struct {
	// Address is the listen address (e.g., ":8080")
	Address string

	// Timeouts
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	// ShowExpensive includes attributes flagged expensive in listings
	ShowExpensive bool

	// Workers is the size of the pool resolving lazy attributes
	Workers int
}

// DefaultConfig returns the server defaults
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		Workers:           4,
	}
}

// Deps are the collaborators the server is built from
type Deps struct {
	Catalog   *catalog.Catalog
	Extractor *property.Extractor
	History   *command.History
	Columns   *columns.Registry
	// Auth validates bearer tokens. When nil every caller may edit.
	Auth   *auth.Service
	Logger *zap.Logger
}

// session is one open property source and its editor
type session struct {
	sample string
	src    *source.PropertySource
	editor *edit.Editor
}

// Server serves property sheets
type Server struct {
	config  *Config
	deps    Deps
	logger  *zap.Logger
	filter  property.Filter
	router  chi.Router
	hub     *Hub
	bus     *notify.Bus
	pool    *source.Pool
	events  *source.SerialDispatcher
	httpSrv *http.Server

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	closeOnce sync.Once
}

// New creates a server. Background workers start immediately; call Close to
// release them.
func New(config *Config, deps Deps) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if deps.Catalog == nil || deps.History == nil || deps.Columns == nil {
		return nil, fmt.Errorf("catalog, history and column registry are required")
	}
	if deps.Extractor == nil {
		deps.Extractor = property.NewExtractor()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		deps:     deps,
		logger:   logger,
		filter:   property.And(property.Visible(), property.ShowExpensive(config.ShowExpensive)),
		hub:      NewHub(logger),
		bus:      notify.New(256, logger),
		pool:     source.NewPool(config.Workers, logger),
		events:   source.NewSerialDispatcher(256, logger),
		sessions: make(map[uuid.UUID]*session),
	}
	s.pool.Start()
	s.bus.Subscribe("websocket", notify.HandlerFunc(s.broadcastChange))
	s.bus.Start(context.Background())
	s.router = s.routes()

	s.httpSrv = &http.Server{
		Addr:              config.Address,
		Handler:           s.router,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.authenticate)

	r.Get("/healthz", s.handleHealth)
	r.Get("/samples", s.handleSamples)

	r.Route("/sources", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleProperties)
			r.Delete("/", s.handleCloseSource)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/ws", s.handleWebsocket)
			r.Get("/properties/{attr}", s.handleProperty)
			r.With(s.requireEditor).Put("/properties/{attr}", s.handleWrite)
			r.With(s.requireEditor).Post("/properties/{attr}/reset", s.handleReset)
		})
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.handleHistory)
		r.With(s.requireEditor).Post("/undo", s.handleUndo)
		r.With(s.requireEditor).Post("/redo", s.handleRedo)
		r.With(s.requireEditor).Post("/boundary", s.handleBoundary)
	})

	r.Route("/columns", func(r chi.Router) {
		r.Get("/", s.handleViews)
		r.Get("/{view}", s.handleColumns)
		r.Put("/{view}", s.handleUpdateColumns)
	})
	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until the server is shut down
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.logger.Info("serving property sheets", zap.String("address", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and releases background workers
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.Close()
	return err
}

// Close cancels every open source and stops background workers
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for id, sess := range s.sessions {
			sess.src.Close()
			delete(s.sessions, id)
		}
		s.mu.Unlock()

		s.hub.Close()
		s.bus.Stop()
		s.pool.Shutdown()
		s.events.Close()
	})
}

// open creates a session for a fresh instance of sample
func (s *Server) open(sample string) (*session, error) {
	target, err := s.deps.Catalog.New(sample)
	if err != nil {
		return nil, err
	}

	descriptors := s.deps.Extractor.Extract(target, s.filter)
	src := source.New(target, descriptors,
		source.WithRunner(s.pool),
		source.WithDispatcher(s.events),
		source.WithLogger(s.logger),
	)
	id := src.ID().String()
	src.SetListener(func(_ interface{}, d *property.Descriptor, value interface{}, completed bool) {
		s.hub.Publish(id, Message{
			Type:      MessageResolved,
			Source:    id,
			Attribute: d.ID,
			Value:     property.DisplayValue(value),
			Completed: completed,
		})
	})

	editor := edit.New(src, s.deps.History,
		edit.WithAuthorizer(auth.ReadOnlyPolicy),
		edit.WithNotifier(s.bus),
		edit.WithDefaulter(catalog.Defaults{}),
		edit.WithLogger(s.logger),
	)

	sess := &session{sample: sample, src: src, editor: editor}
	s.mu.Lock()
	s.sessions[src.ID()] = sess
	s.mu.Unlock()

	s.logger.Debug("opened property source", zap.String("sample", sample), zap.String("source", id))
	return sess, nil
}

func (s *Server) session(id uuid.UUID) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) drop(id uuid.UUID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.src.Close()
	}
	return ok
}

// broadcastChange tells subscribers of every source showing evt.Target that
// an attribute changed
func (s *Server) broadcastChange(_ context.Context, evt notify.Event) error {
	s.mu.RLock()
	var matched []*session
	for _, sess := range s.sessions {
		if command.SameTarget(sess.src.Target(), evt.Target) {
			matched = append(matched, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range matched {
		id := sess.src.ID().String()
		value, pending := sess.src.Read(evt.Descriptor)
		s.hub.Publish(id, Message{
			Type:      MessageChanged,
			Source:    id,
			Attribute: evt.Descriptor.ID,
			Value:     property.DisplayValue(value),
			Completed: !pending,
		})
	}
	return nil
}
