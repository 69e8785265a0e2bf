package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/tadowatch/internal/quota"
	"github.com/jpalmerr/tadowatch/internal/store"
)

const (
	// sseWriteTimeout bounds each individual SSE write. A slow or vanished
	// client would otherwise block its handler goroutine forever. Keep this
	// at or below the shutdown timeout so shutdown is not held up by writes.
	sseWriteTimeout = 5 * time.Second
)

// Server handles HTTP requests for the tadowatch API.
//
// Server provides four endpoints:
//   - GET /api/state: Returns the latest home snapshot as JSON
//   - GET /api/usage: Returns live quota usage straight from the tracker
//   - GET /api/sse: Server-Sent Events stream of snapshots
//   - GET /healthz: Liveness probe
//
// Shutdown is driven by cancelling the context passed to [Server.Start].
type Server struct {
	store      store.Store
	usage      func() quota.Usage
	port       int
	httpServer *http.Server
	logger     *slog.Logger

	mu   sync.Mutex
	addr string
}

// NewServer builds a [Server] over the given store.
//
// Parameters:
//   - st: Store implementation holding the latest snapshot
//   - usage: Callback returning live quota usage (snapshots carry the usage
//     at cycle end; this endpoint reflects manual calls made since)
//   - port: TCP port to bind
//   - logger: Logger for server lifecycle events
//
// No listener is opened until [Server.Start] is called.
func NewServer(st store.Store, usage func() quota.Usage, port int, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		usage:  usage,
		port:   port,
		logger: logger,
	}
}

// Start binds the listen socket and begins serving in the background.
//
// Start returns as soon as the socket is bound, so a nil error means the
// port is held. Serving continues until ctx is cancelled, after which the
// server drains open connections for up to 5 seconds.
//
// Bind failures (port taken, permission denied) are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/usage", s.handleUsage)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealthz)

	// bind explicitly so a taken port fails here, not in the serve goroutine
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler: mux,
		// Request contexts descend from ctx via BaseContext, so cancelling
		// ctx also cancels every in-flight handler, SSE streams included.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// drain and close once ctx is cancelled
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on. Empty before a
// successful Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleState returns the latest snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := s.store.Latest()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if !ok {
		// first poll cycle has not finished yet
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no snapshot yet"})
		return
	}

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("failed to encode state response", "error", err)
	}
}

// handleUsage returns live quota usage as JSON.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.usage()); err != nil {
		s.logger.Error("failed to encode usage response", "error", err)
	}
}

// handleHealthz reports process liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleSSE streams snapshots via Server-Sent Events.
//
// Every write carries a deadline. A client that stops reading would
// otherwise park the handler in Fprintf and keep it from ever seeing
// channel closure or context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// SSE needs per-event flushing
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController gives per-request access to deadlines and flushing
	rc := http.NewResponseController(w)

	// flips to false if the underlying writer rejects deadlines
	deadlinesSupported := true

	// writeAndFlush sends one event under the write deadline, so a stalled
	// client surfaces as a timeout error instead of a hung handler.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// writer cannot take deadlines; keep streaming without them
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// Flush obeys the deadline set above
		return rc.Flush()
	}

	// event-stream headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// join the snapshot fan-out
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send the latest snapshot first so clients render immediately
	if snap, ok := s.store.Latest(); ok {
		data, err := json.Marshal(snap)
		if err == nil {
			if err := writeAndFlush(data); err != nil {
				return
			}
		}
	}

	// then follow the live feed
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown alike,
			// since BaseContext ties request contexts to the server context
			return
		}
	}
}
