// Package server exposes the job engine over HTTP: submit a job, poll its
// progress, list jobs, or hold a WebSocket open for pushed updates. Handlers
// never propagate a raw failure to the client; every response is well-formed
// JSON.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/brandforge/engine"
)

// Server hosts the job API for one engine instance.
type Server struct {
	store      *engine.Store
	dispatcher *engine.Dispatcher
	reporter   *engine.Reporter
	registry   *engine.WorkflowRegistry
	logger     *zap.SugaredLogger

	httpServer *http.Server

	clients map[*Client]bool
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server around an engine instance.
func New(store *engine.Store, dispatcher *engine.Dispatcher, reporter *engine.Reporter, registry *engine.WorkflowRegistry, port int, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		reporter:   reporter,
		registry:   registry,
		logger:     logger,
		clients:    make(map[*Client]bool),
		ctx:        ctx,
		cancel:     cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", s.HandleJobs)
	mux.HandleFunc("/api/jobs/", s.HandleJob)
	mux.HandleFunc("/api/kinds", s.HandleKinds)
	mux.HandleFunc("/api/ws", s.HandleWebSocket)
	mux.HandleFunc("/api/health", s.HandleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startJobUpdateBroadcaster()
	s.logger.Infow("Server listening", "addr", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener, disconnects WebSocket clients, and waits for
// background broadcasters.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for client := range s.clients {
		client.close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleKinds lists the registered workflow kinds.
func (s *Server) HandleKinds(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kinds": s.registry.Kinds()})
}
