// ABOUTME: Package bridge holds the coordination core shared by every surface.
// ABOUTME: Registry of polling plugin clients, command routing, and failover queueing.

// Package bridge implements the coordination core of studio-bridge.
//
// A single State value owns all mutable shared data: the registry of
// long-polling Studio plugin clients and, for instances that could not
// bind the coordination port, the failover queue drained by the forwarder.
// Every operation takes the one mutex for a short critical section and
// never performs I/O while holding it.
//
// Tool calls are correlated to their eventual replies by a UUID assigned
// at submission time. A correlation id maps to at most one reply channel,
// held either by the Edit client's registration that the command was
// routed to or by the failover map - never both. Removing a registration
// resolves each of its pending replies with ErrClientGone so no caller is
// ever left waiting forever.
package bridge
