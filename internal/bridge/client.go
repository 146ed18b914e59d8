// ABOUTME: Per-client registration record and the DataModel kind enum.
// ABOUTME: Tracks the delivery queue, wake signal, pending replies, and poll liveness.

package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the DataModel context a registered client runs in.
// Only Edit clients receive routed tool calls; every kind receives
// broadcast events.
type Kind string

const (
	KindEdit   Kind = "Edit"
	KindClient Kind = "Client"
	KindServer Kind = "Server"
)

// UnmarshalJSON rejects kinds outside the known set.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Kind(s) {
	case KindEdit, KindClient, KindServer:
		*k = Kind(s)
		return nil
	default:
		return fmt.Errorf("unknown datamodel type %q", s)
	}
}

// registration is the per-client record held in the State registry.
// All fields are guarded by the State mutex.
type registration struct {
	kind Kind

	// queue holds pending deliveries in FIFO order.
	queue []Event

	// wake is closed and replaced whenever the queue gains an item or the
	// registration is removed. Long polls wait on the channel they read
	// while the lock was held, so every waiter observes the close.
	wake chan struct{}

	// pending maps correlation id to the single-shot reply channel for
	// tool calls routed to this client.
	pending map[uuid.UUID]chan<- Reply

	// lastPollEnded is stamped when a long poll for this client finishes,
	// whatever the outcome. Staleness is measured from here.
	lastPollEnded time.Time

	// inPoll is true strictly while a long poll is being served. The
	// reaper never removes a registration with an in-flight poll.
	inPoll bool
}

// notifyLocked wakes every subscriber of this registration's wake signal.
// Must be called with the State mutex held.
func (r *registration) notifyLocked() {
	close(r.wake)
	r.wake = make(chan struct{})
}
