// ABOUTME: Tagged command union for tool calls delivered to the Studio plugin.
// ABOUTME: Preserves the externally tagged JSON shape the plugin's poller expects.

package bridge

import (
	"github.com/google/uuid"
)

// RunCode executes Luau source in the open place and returns printed output.
type RunCode struct {
	Command string `json:"command"`
}

// InsertModel searches the marketplace and inserts the best match into the
// workspace.
type InsertModel struct {
	Query string `json:"query"`
}

// GetConsoleOutput fetches the Studio output window contents.
type GetConsoleOutput struct{}

// StartStopPlay starts play mode, runs the server, or stops a session.
// Mode must be start_play, run_server, or stop.
type StartStopPlay struct {
	Mode string `json:"mode"`
}

// RunScriptInPlayMode runs a script under play mode and stops play when the
// script finishes or the timeout elapses.
type RunScriptInPlayMode struct {
	Code    string `json:"code"`
	Timeout *int   `json:"timeout,omitempty"`
	Mode    string `json:"mode"`
}

// GetStudioMode reports the current play state of Studio.
type GetStudioMode struct{}

// ToolArgs is the union of tool argument payloads. Exactly one field is
// non-nil; the field name doubles as the wire tag, so a marshalled value
// looks like {"RunCode":{"command":"..."}}.
type ToolArgs struct {
	RunCode             *RunCode             `json:"RunCode,omitempty"`
	InsertModel         *InsertModel         `json:"InsertModel,omitempty"`
	GetConsoleOutput    *GetConsoleOutput    `json:"GetConsoleOutput,omitempty"`
	StartStopPlay       *StartStopPlay       `json:"StartStopPlay,omitempty"`
	RunScriptInPlayMode *RunScriptInPlayMode `json:"RunScriptInPlayMode,omitempty"`
	GetStudioMode       *GetStudioMode       `json:"GetStudioMode,omitempty"`
}

// Name returns the wire tag of the populated variant, or "" when the union
// is empty or over-populated.
func (a ToolArgs) Name() string {
	var name string
	n := 0
	if a.RunCode != nil {
		name, n = "RunCode", n+1
	}
	if a.InsertModel != nil {
		name, n = "InsertModel", n+1
	}
	if a.GetConsoleOutput != nil {
		name, n = "GetConsoleOutput", n+1
	}
	if a.StartStopPlay != nil {
		name, n = "StartStopPlay", n+1
	}
	if a.RunScriptInPlayMode != nil {
		name, n = "RunScriptInPlayMode", n+1
	}
	if a.GetStudioMode != nil {
		name, n = "GetStudioMode", n+1
	}
	if n != 1 {
		return ""
	}
	return name
}

// Valid reports whether exactly one variant is populated.
func (a ToolArgs) Valid() bool {
	return a.Name() != ""
}

// Command is a tool call plus the correlation id assigned at submission.
// ID is nil until the command is prepared for routing; PushToolCall rejects
// commands that still lack one.
type Command struct {
	Args ToolArgs   `json:"args"`
	ID   *uuid.UUID `json:"id,omitempty"`
}

// NewCommand wraps args in a Command carrying a fresh correlation id.
func NewCommand(args ToolArgs) (Command, uuid.UUID) {
	id := uuid.New()
	return Command{Args: args, ID: &id}, id
}

// CommandResponse is the reply wire shape for /proxy and for the plugin's
// tool_call_response bodies. ClientID is set only when the plugin answers;
// server-to-server proxy replies omit it.
type CommandResponse struct {
	Response string     `json:"response"`
	ID       uuid.UUID  `json:"id"`
	ClientID *uuid.UUID `json:"client_id,omitempty"`
}
