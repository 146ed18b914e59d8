// Package gateway serves the coordination HTTP surface on the well-known
// Studio plugin port.
//
// # Overview
//
// The gateway is the contact point for two kinds of peers. Studio plugin
// instances register themselves, long-poll /request for work, and post
// results and events to /response. Other studio-bridge processes that lost
// the race for the port relay their tool calls to /proxy.
//
// # Endpoints
//
//	POST /register    create a client registration, returns client_id
//	POST /unregister  remove a registration
//	GET  /request     long poll for the next queued event (423 on expiry)
//	POST /response    tool call result or event-bridge broadcast
//	POST /proxy       relayed tool call from a dud instance
//	GET  /health      liveness probe
//
// All routing decisions live in the bridge package; this package only
// translates HTTP into bridge.State calls and status codes.
package gateway
