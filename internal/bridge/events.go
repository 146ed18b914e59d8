// ABOUTME: Event union delivered to polling clients: tool call or bridged event.
// ABOUTME: Marshals to the long-poll payload shapes the plugin dispatches on.

package bridge

import (
	"encoding/json"
	"errors"
)

// Event is one item from a client's delivery queue. Exactly one field is
// set: ToolCall for a routed command, Bridge for a broadcast event.
type Event struct {
	ToolCall *Command
	Bridge   json.RawMessage
}

// MarshalJSON produces the long-poll response payload. A tool call is the
// command itself; a bridged event is wrapped in a tagged envelope so the
// plugin can tell the two apart.
func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.ToolCall != nil:
		return json.Marshal(*e.ToolCall)
	case e.Bridge != nil:
		return json.Marshal(bridgeEnvelope{Type: "roblox_event_bridge", Event: e.Bridge})
	default:
		return nil, errors.New("empty event")
	}
}

type bridgeEnvelope struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}
