// ABOUTME: HTTP surface on the coordination port: register, unregister, long poll,
// ABOUTME: response ingestion, and the proxy endpoint used by dud instances.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-bridge/internal/bridge"
)

// DefaultPollTimeout bounds how long a /request long poll is held open.
// Intermediary transports cap idle connections, so on expiry the plugin
// gets 423 and immediately reconnects; this is steady-state behavior, not
// a failure.
const DefaultPollTimeout = 15 * time.Second

// Server serves the coordination HTTP surface over a bridge.State.
type Server struct {
	state       *bridge.State
	pollTimeout time.Duration
	httpServer  *http.Server
	logger      *slog.Logger
}

// Config holds gateway settings.
type Config struct {
	// PollTimeout overrides DefaultPollTimeout when positive.
	PollTimeout time.Duration
}

// New creates a gateway server for the given coordinator state.
func New(state *bridge.State, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		state:       state,
		pollTimeout: cfg.PollTimeout,
		logger:      logger.With("component", "gateway"),
	}
	if s.pollTimeout <= 0 {
		s.pollTimeout = DefaultPollTimeout
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/unregister", s.handleUnregister)
	mux.HandleFunc("/request", s.handleRequest)
	mux.HandleFunc("/response", s.handleResponse)
	mux.HandleFunc("/proxy", s.handleProxy)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route mux, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the HTTP server on ln until ctx is canceled, then shuts down
// gracefully. Returns nil on graceful shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("coordination server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("coordination server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// registerBody is the JSON request body for POST /register.
type registerBody struct {
	Kind bridge.Kind `json:"datamodel_type"`
}

// registerResponse is the JSON response for POST /register.
type registerResponse struct {
	ClientID uuid.UUID `json:"client_id"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Kind == "" {
		http.Error(w, "datamodel_type is required", http.StatusBadRequest)
		return
	}

	id := s.state.Register(body.Kind)
	s.writeJSON(w, registerResponse{ClientID: id})
}

// unregisterBody is the JSON request body for POST /unregister.
type unregisterBody struct {
	ClientID uuid.UUID `json:"client_id"`
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body unregisterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.state.Unregister(body.ClientID) {
		http.Error(w, "Unknown client_id", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleRequest serves the long poll. The poll is held open until an event
// is available, the deadline elapses (423, plugin re-polls), or the
// registration disappears mid-wait (410). Poll bookkeeping is written back
// before the response goes out.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	clientID, err := uuid.Parse(r.URL.Query().Get("client_id"))
	if err != nil {
		http.Error(w, "invalid client_id", http.StatusBadRequest)
		return
	}

	if err := s.state.BeginPoll(clientID); err != nil {
		http.Error(w, fmt.Sprintf("Unknown client_id %s", clientID), http.StatusNotFound)
		return
	}

	ev, pollErr := s.awaitEvent(r.Context(), clientID)

	// The reaper may only consider this client stale again from here on.
	s.state.EndPoll(clientID)

	switch {
	case pollErr == nil:
		s.writeJSON(w, ev)
	case errors.Is(pollErr, bridge.ErrClientGone):
		http.Error(w, fmt.Sprintf("Client gone: %s", clientID), http.StatusGone)
	default:
		// Deadline elapsed (or the plugin hung up): tell it to re-poll.
		w.WriteHeader(http.StatusLocked)
	}
}

// errPollTimeout distinguishes the retryable deadline expiry from real
// failures inside awaitEvent.
var errPollTimeout = errors.New("poll timeout")

// awaitEvent pops the next queued event for the client, waiting on the
// wake signal outside any lock between checks.
func (s *Server) awaitEvent(ctx context.Context, clientID uuid.UUID) (*bridge.Event, error) {
	timer := time.NewTimer(s.pollTimeout)
	defer timer.Stop()

	for {
		ev, wake, err := s.state.Next(clientID)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}
		select {
		case <-wake:
		case <-timer.C:
			return nil, errPollTimeout
		case <-ctx.Done():
			return nil, errPollTimeout
		}
	}
}

// responseBody is the tagged JSON body for POST /response: either a tool
// call result from the plugin or an event to broadcast.
type responseBody struct {
	Type     string          `json:"type"`
	ClientID uuid.UUID       `json:"client_id"`
	ID       uuid.UUID       `json:"id"`
	Response string          `json:"response"`
	Event    json.RawMessage `json:"event"`
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body responseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch body.Type {
	case "tool_call_response":
		s.logger.Debug("tool call response received", "client_id", body.ClientID, "id", body.ID)
		if err := s.state.Resolve(body.ClientID, body.ID, body.Response); err != nil {
			http.Error(w, "Unknown client_id or tool id", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case "roblox_event_bridge":
		if !s.state.HasClient(body.ClientID) {
			http.Error(w, "Unknown client_id", http.StatusNotFound)
			return
		}
		s.state.Broadcast(body.Event)
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, fmt.Sprintf("unknown response type %q", body.Type), http.StatusBadRequest)
	}
}

// handleProxy accepts a command relayed from a dud instance, routes it
// locally, and blocks until the plugin's reply arrives. The dud's outbound
// timeout bounds the wait on its side.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var cmd bridge.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !cmd.Args.Valid() {
		http.Error(w, "malformed command args", http.StatusBadRequest)
		return
	}
	if cmd.ID == nil {
		http.Error(w, bridge.ErrMissingCorrelationID.Error(), http.StatusServiceUnavailable)
		return
	}
	s.logger.Debug("proxy command received", "tool", cmd.Args.Name(), "id", *cmd.ID)

	reply := make(chan bridge.Reply, 1)
	if err := s.state.PushToolCall(cmd, reply); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	select {
	case res := <-reply:
		if res.Err != nil {
			http.Error(w, res.Err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.writeJSON(w, bridge.CommandResponse{Response: res.Text, ID: *cmd.ID})
	case <-r.Context().Done():
		// Relay gave up; the pending entry resolves when its owner goes away.
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
