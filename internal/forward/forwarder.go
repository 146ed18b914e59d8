// ABOUTME: Dud-mode failover forwarder relaying queued commands to the port owner.
// ABOUTME: Drains the failover queue and resolves each caller with the relay result.

// Package forward implements the failover path used when another instance
// of studio-bridge already owns the coordination port. This instance still
// accepts tool submissions; they land in the failover queue, and the
// forwarder relays each one to the owner's /proxy endpoint.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/studio-bridge/internal/bridge"
)

// DefaultRelayTimeout bounds one outbound /proxy call. It must outlive the
// longest tool the plugin can run, which is a scripted play-mode session
// defaulting to 100 seconds.
const DefaultRelayTimeout = 120 * time.Second

// ErrProxyUnreachable wraps relay transport failures delivered to waiting
// callers.
var ErrProxyUnreachable = errors.New("proxy unreachable")

// Forwarder relays failover-queued commands to the owning process.
type Forwarder struct {
	state    *bridge.State
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a forwarder targeting the owner's proxy endpoint, e.g.
// "http://127.0.0.1:44755/proxy". A non-positive timeout falls back to
// DefaultRelayTimeout.
func New(state *bridge.State, endpoint string, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		state:    state,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "forwarder"),
	}
}

// Run drains the failover queue until ctx is canceled. When the queue is
// empty it blocks on the failover wake signal or shutdown, whichever
// fires first. Relay failures resolve the waiting caller with an error;
// they never crash the loop.
func (f *Forwarder) Run(ctx context.Context) error {
	f.logger.Info("running in dud mode, forwarding to port owner", "endpoint", f.endpoint)
	for {
		cmd, wake := f.state.PopForward()
		if cmd == nil {
			select {
			case <-ctx.Done():
				f.logger.Info("forwarder stopping")
				return nil
			case <-wake:
			}
			continue
		}
		f.relay(ctx, *cmd)
	}
}

// relay forwards one command and resolves its pending reply with the
// outcome. A command without a correlation id cannot be resolved; routing
// rejects those before they are queued, so this only guards decay.
func (f *Forwarder) relay(ctx context.Context, cmd bridge.Command) {
	if cmd.ID == nil {
		f.logger.Error("dropping queued command with no correlation id", "tool", cmd.Args.Name())
		return
	}
	id := *cmd.ID

	text, err := f.post(ctx, cmd)
	if err != nil {
		f.logger.Error("relay failed", "id", id, "error", err)
		if !f.state.ResolveForward(id, bridge.Reply{Err: fmt.Errorf("%w: %v", ErrProxyUnreachable, err)}) {
			f.logger.Warn("no pending reply for relayed command", "id", id)
		}
		return
	}

	if !f.state.ResolveForward(id, bridge.Reply{Text: text}) {
		f.logger.Warn("no pending reply for relayed command", "id", id)
	}
}

// post performs the HTTP relay and decodes the owner's reply.
func (f *Forwarder) post(ctx context.Context, cmd bridge.Command) (string, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}

	var out bridge.CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding proxy reply: %w", err)
	}
	return out.Response, nil
}
