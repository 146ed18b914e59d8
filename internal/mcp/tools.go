// ABOUTME: Static Studio tool catalog with JSON Schemas and argument decoding.
// ABOUTME: Maps MCP tool names onto the bridge command union.

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/studio-bridge/internal/bridge"
)

// Version is stamped by the release build; "dev" otherwise.
var Version = "dev"

// ToolInfo is an MCP tool definition.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

var errUnknownTool = errors.New("unknown tool")

// toolCatalog lists every tool we expose, in the order clients see them.
var toolCatalog = []ToolInfo{
	{
		Name:        "run_code",
		Description: "Runs a command in Roblox Studio and returns the printed output. Can be used to both make changes and retrieve information",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "Code to run"}
			},
			"required": ["command"]
		}`),
	},
	{
		Name:        "insert_model",
		Description: "Inserts a model from the Roblox marketplace into the workspace. Returns the inserted model name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Query to search for the model"}
			},
			"required": ["query"]
		}`),
	},
	{
		Name:        "get_console_output",
		Description: "Get the console output from Roblox Studio.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	},
	{
		Name:        "start_stop_play",
		Description: "Start or stop play mode or run the server.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"mode": {"type": "string", "description": "Mode to start or stop, must be start_play, stop, or run_server"}
			},
			"required": ["mode"]
		}`),
	},
	{
		Name: "run_script_in_play_mode",
		Description: "Run a script in play mode and automatically stop play after script finishes or timeout. Returns the output of the script. " +
			"Result format: { success: boolean, value: string, error: string, logs: { level: string, message: string, ts: number }[], errors: { level: string, message: string, ts: number }[], duration: number, isTimeout: boolean }",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "Code to run"},
				"timeout": {"type": "integer", "description": "Timeout in seconds, defaults to 100 seconds"},
				"mode": {"type": "string", "description": "Mode to run in, must be start_play or run_server"}
			},
			"required": ["code", "mode"]
		}`),
	},
	{
		Name:        "get_studio_mode",
		Description: "Get the current studio mode. Returns the studio mode. The result will be one of start_play, run_server, or stop.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	},
}

// buildToolArgs decodes tool arguments into the matching command variant.
func buildToolArgs(name string, raw json.RawMessage) (bridge.ToolArgs, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var args bridge.ToolArgs
	var err error
	switch name {
	case "run_code":
		v := &bridge.RunCode{}
		err = json.Unmarshal(raw, v)
		args.RunCode = v
	case "insert_model":
		v := &bridge.InsertModel{}
		err = json.Unmarshal(raw, v)
		args.InsertModel = v
	case "get_console_output":
		v := &bridge.GetConsoleOutput{}
		err = json.Unmarshal(raw, v)
		args.GetConsoleOutput = v
	case "start_stop_play":
		v := &bridge.StartStopPlay{}
		err = json.Unmarshal(raw, v)
		args.StartStopPlay = v
	case "run_script_in_play_mode":
		v := &bridge.RunScriptInPlayMode{}
		err = json.Unmarshal(raw, v)
		args.RunScriptInPlayMode = v
	case "get_studio_mode":
		v := &bridge.GetStudioMode{}
		err = json.Unmarshal(raw, v)
		args.GetStudioMode = v
	default:
		return bridge.ToolArgs{}, errUnknownTool
	}
	if err != nil {
		return bridge.ToolArgs{}, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return args, nil
}
