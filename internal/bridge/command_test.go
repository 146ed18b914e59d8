// ABOUTME: Tests for the command union's wire shape and kind parsing.
// ABOUTME: The plugin depends on the externally tagged args layout verbatim.

package bridge

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandWireShape(t *testing.T) {
	cmd, id := NewCommand(runCodeArgs("print(1)"))

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"args":{"RunCode":{"command":"print(1)"}},"id":%q}`, id), string(data))
}

func TestCommandRoundTrip(t *testing.T) {
	raw := `{"args":{"StartStopPlay":{"mode":"start_play"}},"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`

	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(raw), &cmd))
	require.NotNil(t, cmd.ID)
	require.NotNil(t, cmd.Args.StartStopPlay)
	assert.Equal(t, "start_play", cmd.Args.StartStopPlay.Mode)
	assert.Equal(t, "StartStopPlay", cmd.Args.Name())
}

func TestToolArgsValidity(t *testing.T) {
	assert.False(t, ToolArgs{}.Valid())
	assert.True(t, runCodeArgs("x").Valid())

	both := ToolArgs{
		RunCode:       &RunCode{Command: "x"},
		GetStudioMode: &GetStudioMode{},
	}
	assert.False(t, both.Valid(), "over-populated union is malformed")
}

func TestKindUnmarshal(t *testing.T) {
	var k Kind
	require.NoError(t, json.Unmarshal([]byte(`"Edit"`), &k))
	assert.Equal(t, KindEdit, k)

	assert.Error(t, json.Unmarshal([]byte(`"edit"`), &k), "kinds are PascalCase")
	assert.Error(t, json.Unmarshal([]byte(`"Studio"`), &k))
}

func TestEventMarshal(t *testing.T) {
	cmd, id := NewCommand(runCodeArgs("x"))

	data, err := json.Marshal(Event{ToolCall: &cmd})
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"args":{"RunCode":{"command":"x"}},"id":%q}`, id), string(data))

	data, err = json.Marshal(Event{Bridge: json.RawMessage(`{"hello":"world"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"roblox_event_bridge","event":{"hello":"world"}}`, string(data))

	_, err = json.Marshal(Event{})
	assert.Error(t, err)
}
