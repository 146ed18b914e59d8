// ABOUTME: Tests for the dud-mode forwarder against a fake port owner.
// ABOUTME: Covers relay success, transport failure, bad status, and shutdown.

package forward

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/studio-bridge/internal/bridge"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startForwarder runs a forwarder against endpoint and stops it when the
// test finishes.
func startForwarder(t *testing.T, state *bridge.State, endpoint string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f := New(state, endpoint, 5*time.Second, testLogger())

	done := make(chan struct{})
	go func() {
		_ = f.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("forwarder did not stop on context cancellation")
		}
	})
}

func TestForwarderRelaysQueuedCommand(t *testing.T) {
	// Fake port owner: echo the command text back with the same id.
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/proxy", r.URL.Path)

		var cmd bridge.Command
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		require.NotNil(t, cmd.ID)
		require.NotNil(t, cmd.Args.RunCode)

		_ = json.NewEncoder(w).Encode(bridge.CommandResponse{
			Response: "relayed: " + cmd.Args.RunCode.Command,
			ID:       *cmd.ID,
		})
	}))
	defer owner.Close()

	state := bridge.NewState(time.Minute, testLogger())
	startForwarder(t, state, owner.URL+"/proxy")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// No Edit client registered, so Submit lands in the failover queue.
	text, err := state.Submit(ctx, bridge.ToolArgs{RunCode: &bridge.RunCode{Command: "print(1)"}})
	require.NoError(t, err)
	assert.Equal(t, "relayed: print(1)", text)
}

func TestForwarderReportsUnreachableProxy(t *testing.T) {
	// Endpoint points at a closed server.
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := owner.URL + "/proxy"
	owner.Close()

	state := bridge.NewState(time.Minute, testLogger())
	startForwarder(t, state, endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := state.Submit(ctx, bridge.ToolArgs{GetStudioMode: &bridge.GetStudioMode{}})
	assert.ErrorIs(t, err, ErrProxyUnreachable)
}

func TestForwarderReportsBadStatus(t *testing.T) {
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusServiceUnavailable)
	}))
	defer owner.Close()

	state := bridge.NewState(time.Minute, testLogger())
	startForwarder(t, state, owner.URL+"/proxy")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := state.Submit(ctx, bridge.ToolArgs{GetStudioMode: &bridge.GetStudioMode{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProxyUnreachable)
	assert.Contains(t, err.Error(), "503")
}

func TestForwarderReportsMalformedReply(t *testing.T) {
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer owner.Close()

	state := bridge.NewState(time.Minute, testLogger())
	startForwarder(t, state, owner.URL+"/proxy")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := state.Submit(ctx, bridge.ToolArgs{GetStudioMode: &bridge.GetStudioMode{}})
	assert.ErrorIs(t, err, ErrProxyUnreachable)
}

func TestForwarderStopsPromptlyWhenIdle(t *testing.T) {
	state := bridge.NewState(time.Minute, testLogger())
	f := New(state, "http://127.0.0.1:1/proxy", time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("idle forwarder did not stop on cancellation")
	}
}
