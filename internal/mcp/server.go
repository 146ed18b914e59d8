// ABOUTME: MCP server over stdio speaking JSON-RPC 2.0, newline-delimited.
// ABOUTME: Exposes the Studio tools and forwards calls through the bridge submitter.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/studio-bridge/internal/bridge"
)

// protocolVersion is the MCP revision we advertise in initialize responses.
const protocolVersion = "2025-03-26"

// MaxMessageSize is the largest JSON-RPC message we accept on stdin (10MB);
// play-mode scripts can be large.
const MaxMessageSize = 10 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call. Tool failures are reported
// through IsError, not as JSON-RPC errors.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// Submitter routes a tool call and blocks for its single reply. Satisfied
// by *bridge.State; the MCP layer touches the core through nothing else.
type Submitter interface {
	Submit(ctx context.Context, args bridge.ToolArgs) (string, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Submitter Submitter
	Logger    *slog.Logger
	In        io.Reader
	Out       io.Writer
}

// Server speaks MCP over a newline-delimited JSON-RPC stream.
type Server struct {
	submitter Submitter
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	writeMu   sync.Mutex
}

// NewServer creates an MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("in and out streams are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		submitter: cfg.Submitter,
		logger:    logger.With("component", "mcp"),
		in:        cfg.In,
		out:       cfg.Out,
	}, nil
}

// Run reads JSON-RPC messages until the input closes or ctx is canceled.
// Requests are handled concurrently so a long tool call does not block
// notifications or further requests.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lines <- line
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				return nil
			}
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleMessage(ctx, line)
			}()
		}
	}
}

// handleMessage parses one message and writes its response, if any.
func (s *Server) handleMessage(ctx context.Context, line []byte) {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.sendError(nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	// Notifications get no response.
	if len(req.ID) == 0 || string(req.ID) == "null" {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return
	}

	s.logger.Debug("MCP request", "method", req.Method)

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "ping":
		s.sendResult(req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		s.sendError(req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize answers the MCP handshake.
func (s *Server) handleInitialize(req JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "studio-bridge",
			"version": Version,
		},
		"instructions": "Use run_code to query data from the open Roblox Studio place or to change it.",
	}
	s.sendResult(req.ID, result)
}

// handleToolsList returns the static Studio tool set.
func (s *Server) handleToolsList(req JSONRPCRequest) {
	s.sendResult(req.ID, ListToolsResult{Tools: toolCatalog})
}

// handleToolsCall routes one tool invocation through the submitter and
// reports the outcome as a tool result.
func (s *Server) handleToolsCall(ctx context.Context, req JSONRPCRequest) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.sendError(req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	args, err := buildToolArgs(params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, errUnknownTool) {
			s.sendError(req.ID, JSONRPCInvalidParams, "tool not found", nil)
			return
		}
		s.sendError(req.ID, JSONRPCInvalidParams, err.Error(), nil)
		return
	}

	s.logger.Debug("tools/call", "tool_name", params.Name)
	text, err := s.submitter.Submit(ctx, args)
	if err != nil {
		s.sendResult(req.ID, CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}
	s.sendResult(req.ID, CallToolResult{
		Content: []Content{{Type: "text", Text: text}},
	})
}

// sendResult writes a successful JSON-RPC response.
func (s *Server) sendResult(id json.RawMessage, result any) {
	s.write(JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

// sendError writes a JSON-RPC error response.
func (s *Server) sendError(id json.RawMessage, code int, message string, data any) {
	s.write(JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message, Data: data}})
}

// write emits one newline-delimited message; writes are serialized because
// tool calls complete concurrently.
func (s *Server) write(resp JSONRPCResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := json.NewEncoder(s.out).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
