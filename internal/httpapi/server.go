package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/livetranslator/internal/config"
	"github.com/ent0n29/livetranslator/internal/identity"
	"github.com/ent0n29/livetranslator/internal/journal"
	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/logging"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/presence"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/relay"
)

// Deps are the components the HTTP layer drives.
type Deps struct {
	Identity *identity.Service
	Registry *registry.Registry
	Presence *presence.Broadcaster
	Router   *relay.Router
	Journal  journal.Store
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

type Server struct {
	cfg      config.Config
	identity *identity.Service
	registry *registry.Registry
	presence *presence.Broadcaster
	router   *relay.Router
	journal  journal.Store
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader

	// ctx outlives individual requests; speech routing and presence run on it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

func New(cfg config.Config, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		identity: deps.Identity,
		registry: deps.Registry,
		presence: deps.Presence,
		router:   deps.Router,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		log:      logging.OrNop(deps.Logger),
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin allows same-origin browsers and clients that send no Origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/token", s.handleToken)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Get("/v1/presence", s.handlePresence)
	r.Get("/v1/connections/events", s.handleConnectionEvents)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	// Every other path opens the persistent channel.
	r.HandleFunc("/", s.handleWS)
	r.HandleFunc("/*", s.handleWS)

	return r
}

func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request) {
	token, err := s.identity.Issue()
	if err != nil {
		s.log.Error("issue token", zap.Error(err))
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(token))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.registry.Len(),
		"languages":   supportedLanguages(),
	})
}

func supportedLanguages() []string {
	langs := language.Supported()
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		out = append(out, l.String())
	}
	return out
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.journal.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"journal_mode": s.journalMode(),
	})
}

func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	users := s.presence.Roster()
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

const maxEventsLimit = 500

func (s *Server) handleConnectionEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondJSON(w, http.StatusOK, map[string]any{"events": []journal.Event{}})
		return
	}
	limit := journal.DefaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("list connection events", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "journal_unavailable", "could not list events")
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) journalMode() string {
	switch s.journal.(type) {
	case nil:
		return "disabled"
	case *journal.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

// Shutdown stops routing, closes every open connection with a going-away
// frame and waits for their cleanup to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	open := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.closeWith(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers c for shutdown. It reports false once Shutdown has begun.
func (s *Server) track(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.wg.Done()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
