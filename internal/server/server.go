// Package server is the HTTP dispatcher of nexus. It resolves requests through the
// pattern router, serves user lookups through the tiered cache and keeps the
// application state in a state.Store.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"goflare.io/nexus/internal/cache/tiered"
	"goflare.io/nexus/internal/events"
	"goflare.io/nexus/internal/log"
	"goflare.io/nexus/internal/state"
	"goflare.io/nexus/internal/utils"
	"goflare.io/nexus/pkg/router"
)

// HandlerFunc handles a request whose route has already been matched.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params router.Params)

// Cache is the part of the tiered cache the server uses.
type Cache interface {
	Set(ctx context.Context, key string, value any, tier ...tiered.Tier) error
	Fetch(ctx context.Context, key string, tier tiered.Tier, loader tiered.Loader) (any, error)
	Stats(ctx context.Context) tiered.Stats
}

// Deps holds what the server needs. Cache is required.
type Deps struct {
	Cache  Cache
	Logger *zap.Logger
	Clock  func() time.Time
	// Events receives user:created; a private bus is created when nil.
	Events *events.Bus

	// SeedDemoData adds two demo users to the initial state.
	SeedDemoData bool
}

// Server implements http.Handler.
type Server struct {
	router  *router.Router[HandlerFunc]
	cache   Cache
	state   *state.Store[AppState]
	events  *events.Bus
	logger  *zap.Logger
	clock   func() time.Time
	started time.Time
	handler http.Handler
}

// New creates a Server with the built-in routes registered.
func New(deps Deps) *Server {
	s := &Server{
		router: router.New[HandlerFunc](),
		cache:  deps.Cache,
		logger: deps.Logger,
		clock:  deps.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.started = s.clock()

	initial := AppState{}
	if deps.SeedDemoData {
		for _, u := range DemoUsers(s.started) {
			initial = initial.withUser(u, s.started)
		}
	}
	s.state = state.New(initial, state.DefaultMaxHistory, s.clock, s.logger.Named("state"))
	s.state.Subscribe(func(next, prev AppState) {
		if len(next.Users) != len(prev.Users) {
			s.logger.Info("Users changed", zap.Int("count", len(next.Users)))
		}
	})

	s.events = deps.Events
	if s.events == nil {
		s.events = events.NewBus(s.clock, s.logger.Named("events"))
	}
	// Registered for every type so it runs after the user:created handlers and sees
	// whether one of them prevented the creation.
	s.events.OnAny(s.onUserCreated)

	s.routes()

	var h http.Handler = http.HandlerFunc(s.dispatch)
	h = corsMiddleware(h)
	h = s.recoverMiddleware(h)
	h = log.AccessLogHandler(s.logger, h)
	s.handler = requestIDMiddleware(h)
	return s
}

func (s *Server) routes() {
	s.router.MustRegister(http.MethodGet, "/", s.index)
	s.router.MustRegister(http.MethodGet, "/health", s.health)
	s.router.MustRegister(http.MethodGet, "/api/state", s.currentState)
	s.router.MustRegister(http.MethodPost, "/api/users", s.createUser)
	s.router.MustRegister(http.MethodGet, "/api/users/:id", s.getUser)
	s.router.MustRegister(http.MethodGet, "/api/cache/stats", s.cacheStats)
}

// Handle registers an additional route. It may be called while serving.
func (s *Server) Handle(method, pattern string, h HandlerFunc) error {
	return s.router.Register(strings.ToUpper(method), pattern, h)
}

func (s *Server) recordVisit() {
	s.state.Update("VISIT", func(st AppState) AppState { return st.withVisit(s.clock()) })
}

// Events exposes the event bus the server emits on.
func (s *Server) Events() *events.Bus {
	return s.events
}

// State exposes the application state store.
func (s *Server) State() *state.Store[AppState] {
	return s.state
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	path := utils.StripQuery(r.URL.RequestURI())
	method := strings.ToUpper(r.Method)

	m, ok := s.router.Match(method, path)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{
			Error:  "Route not found",
			Path:   r.URL.RequestURI(),
			Method: r.Method,
		})
		return
	}
	s.recordVisit()
	m.Handler(w, r, m.Params)
}
