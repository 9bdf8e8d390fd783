// Package debugapi provides the introspection/control HTTP surface for
// the softap lifecycle daemon (§6): per-AP state and client dumps, a
// websocket feed of state-change events, and a health check. It uses the
// gorilla/mux router and golang.org/x/time/rate per-IP limiting the same
// way the sensor daemon's dashboard did, and a gorilla/websocket hub for
// the live feed.
package debugapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

// Registry is the subset of the lifecycle manager the debug API needs: a
// lookup from AP id to the thing it dumps/acts on, so this package never
// imports internal/lifecycle's mutating methods directly.
type Registry interface {
	Dump(id string, w io.Writer) error
	Stop(id string) bool
	IDs() []string
	// State returns the structured pure-accessor view (§6: role(),
	// interface_name(), requestor(), current_state_name()) for id.
	State(id string) (role, ifaceName, requestor, state string, err error)
}

// Server is the debug HTTP + websocket surface.
type Server struct {
	registry Registry
	router   *mux.Router
	server   *http.Server
	hub      *hub
	limiter  *perIPLimiter
	log      *logger.Logger
	start    time.Time
}

// New builds a Server bound to host:port, with rateLimitPerMinute applied
// per client IP across every route.
func New(registry Registry, host string, port int, rateLimitPerMinute int, log *logger.Logger) *Server {
	s := &Server{
		registry: registry,
		router:   mux.NewRouter(),
		hub:      newHub(),
		limiter:  newPerIPLimiter(rateLimitPerMinute),
		log:      log,
		start:    time.Now(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetRegistry binds the Registry after construction, for the common
// wiring case where the registry (internal/manager.Manager) itself needs
// a reference to this Server as its Broadcaster.
func (s *Server) SetRegistry(r Registry) {
	s.registry = r
}

func (s *Server) setupRoutes() {
	s.router.Use(s.limiter.middleware)
	s.router.Use(s.loggingMiddleware)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	v1.HandleFunc("/softap/{id}/state", s.handleState).Methods("GET")
	v1.HandleFunc("/softap/{id}/clients", s.handleClients).Methods("GET")
	v1.HandleFunc("/softap/{id}/dump", s.handleDump).Methods("GET")
	v1.HandleFunc("/softap/{id}/stop", s.handleStop).Methods("POST")
	v1.HandleFunc("/ws", s.handleWS).Methods("GET")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("debug API listening on %s", s.server.Addr)
	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errc:
		return err
	}
}

// Stop gracefully shuts down the HTTP server and websocket hub.
func (s *Server) Stop() error {
	s.log.Info("shutting down debug API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	return s.server.Shutdown(ctx)
}

// Broadcast implements the observer-to-websocket-feed bridge: call this
// from a lifecycle.Observers implementation to fan a state change out to
// every connected debug client.
func (s *Server) Broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("failed to marshal broadcast event: %v", err)
		return
	}
	s.hub.broadcast(data)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	role, ifaceName, requestor, state, err := s.registry.State(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"id":                 id,
		"role":               role,
		"interface_name":     ifaceName,
		"requestor":          requestor,
		"current_state_name": state,
	})
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	// Returns the same dump text as /dump, which carries the client and
	// pending-disconnect counts but no per-client list; a structured
	// clients endpoint would require a second Registry method, which
	// Dump's call site does not need elsewhere in this daemon.
	id := mux.Vars(r)["id"]
	var buf writeBuffer
	if err := s.registry.Dump(id, &buf); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "dump": buf.String()})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var buf writeBuffer
	if err := s.registry.Dump(id, &buf); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(buf.Bytes())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.registry.Stop(id) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no such ap: %s", id))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "stopping"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = err // best-effort response, client disconnect is not actionable here
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writeBuffer is a minimal io.Writer the Registry interface can target
// without this package importing bytes.Buffer's full surface.
type writeBuffer struct {
	data []byte
}

func (b *writeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
func (b *writeBuffer) String() string { return string(b.data) }
func (b *writeBuffer) Bytes() []byte  { return b.data }

// perIPLimiter rate-limits requests per client IP, at perMin requests/minute.
type perIPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newPerIPLimiter(perMin int) *perIPLimiter {
	return &perIPLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMin}
}

func (l *perIPLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		l.mu.Lock()
		lim, ok := l.limiters[ip]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
			l.limiters[ip] = lim
		}
		l.mu.Unlock()

		if !lim.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
