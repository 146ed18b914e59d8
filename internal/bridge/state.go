// ABOUTME: Process-wide coordinator state behind a single mutex.
// ABOUTME: Registration, routing, broadcast, stale-client reaping, and failover queueing.

package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStaleGap is how long a client may sit between polls before the
// reaper removes it.
const DefaultStaleGap = 5 * time.Second

// ErrMissingCorrelationID indicates a command was submitted for routing
// without an id.
var ErrMissingCorrelationID = errors.New("command has no correlation id")

// ErrUnknownClient indicates the target registration does not exist.
var ErrUnknownClient = errors.New("unknown client")

// ErrClientGone indicates the registration was removed while work for it
// was still outstanding.
var ErrClientGone = errors.New("client gone")

// ErrUnknownCorrelationID indicates a response arrived for an id with no
// pending reply.
var ErrUnknownCorrelationID = errors.New("unknown correlation id")

// Reply is the single value delivered on a command's reply channel.
type Reply struct {
	Text string
	Err  error
}

// State is the shared coordinator state. One instance exists per process;
// every method takes the mutex for the duration of its own critical
// section only.
type State struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*registration

	// Failover side, used only when this process is not the port owner.
	forwardQueue   []Command
	forwardWake    chan struct{}
	forwardReplies map[uuid.UUID]chan<- Reply

	staleGap time.Duration
	logger   *slog.Logger
}

// NewState creates an empty coordinator state. A non-positive staleGap
// falls back to DefaultStaleGap. Pass nil logger for the default.
func NewState(staleGap time.Duration, logger *slog.Logger) *State {
	if staleGap <= 0 {
		staleGap = DefaultStaleGap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		clients:        make(map[uuid.UUID]*registration),
		forwardWake:    make(chan struct{}),
		forwardReplies: make(map[uuid.UUID]chan<- Reply),
		staleGap:       staleGap,
		logger:         logger.With("component", "bridge-state"),
	}
}

// Register creates a registration for a client of the given kind and
// returns its id. The fresh timestamp exempts the client from reaping
// until its first poll ends.
func (s *State) Register(kind Kind) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.clients[id] = &registration{
		kind:          kind,
		wake:          make(chan struct{}),
		pending:       make(map[uuid.UUID]chan<- Reply),
		lastPollEnded: time.Now(),
	}
	s.logger.Info("client registered", "client_id", id, "kind", kind, "total_clients", len(s.clients))
	return id
}

// Unregister removes the registration if present and reports whether it
// existed. Pending replies are resolved with ErrClientGone and queued
// events are discarded.
func (s *State) Unregister(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.clients[id]
	if !ok {
		return false
	}
	s.removeLocked(id, reg)
	s.logger.Info("client unregistered", "client_id", id, "total_clients", len(s.clients))
	return true
}

// removeLocked deletes a registration, wakes its pollers so they observe
// the removal, and resolves its pending replies with ErrClientGone.
func (s *State) removeLocked(id uuid.UUID, reg *registration) {
	delete(s.clients, id)
	reg.notifyLocked()
	for cid, ch := range reg.pending {
		ch <- Reply{Err: ErrClientGone}
		delete(reg.pending, cid)
	}
}

// PruneStale removes every registration whose poll is not in flight and
// whose last poll ended longer than the stale gap ago. Called lazily
// before routing, broadcasting, and polling; there is no timer.
func (s *State) PruneStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneStaleLocked()
}

func (s *State) pruneStaleLocked() {
	now := time.Now()
	for id, reg := range s.clients {
		if reg.inPoll || now.Sub(reg.lastPollEnded) <= s.staleGap {
			continue
		}
		s.removeLocked(id, reg)
		s.logger.Info("pruned stale client", "client_id", id, "kind", reg.kind)
	}
}

// findEditLocked returns the first Edit registration, if any. Selection
// among multiple Edit clients is map-iteration order; only one is expected
// in practice.
func (s *State) findEditLocked() (uuid.UUID, *registration, bool) {
	for id, reg := range s.clients {
		if reg.kind == KindEdit {
			return id, reg, true
		}
	}
	return uuid.UUID{}, nil, false
}

// FindAddressableTarget reaps stale clients and returns the id of the
// current Edit client, if one exists.
func (s *State) FindAddressableTarget() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	id, _, ok := s.findEditLocked()
	return id, ok
}

// PushToolCall routes a command to the Edit client's queue, or to the
// failover queue when no Edit client is registered. The reply channel is
// recorded under the command's correlation id in whichever destination
// received the command. The channel must have capacity for one value.
func (s *State) PushToolCall(cmd Command, reply chan<- Reply) error {
	if cmd.ID == nil {
		return ErrMissingCorrelationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	if id, reg, ok := s.findEditLocked(); ok {
		reg.queue = append(reg.queue, Event{ToolCall: &cmd})
		reg.pending[*cmd.ID] = reply
		reg.notifyLocked()
		s.logger.Debug("tool call routed", "tool", cmd.Args.Name(), "id", *cmd.ID, "client_id", id)
		return nil
	}

	// No Edit client: queue for the failover forwarder.
	s.forwardQueue = append(s.forwardQueue, cmd)
	s.forwardReplies[*cmd.ID] = reply
	close(s.forwardWake)
	s.forwardWake = make(chan struct{})
	s.logger.Debug("tool call queued for proxy", "tool", cmd.Args.Name(), "id", *cmd.ID)
	return nil
}

// Broadcast reaps stale clients, then appends the event to every remaining
// registration's queue - sender included - within one critical section.
func (s *State) Broadcast(event json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	for _, reg := range s.clients {
		reg.queue = append(reg.queue, Event{Bridge: event})
		reg.notifyLocked()
	}
	s.logger.Debug("event broadcast", "clients", len(s.clients))
}

// HasClient reports whether the registration exists, reaping first.
func (s *State) HasClient(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	_, ok := s.clients[id]
	return ok
}

// BeginPoll marks the client's poll as in flight, which exempts it from
// reaping until EndPoll. Returns ErrUnknownClient if the registration does
// not exist (after reaping).
func (s *State) BeginPoll(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	reg, ok := s.clients[id]
	if !ok {
		return ErrUnknownClient
	}
	reg.inPoll = true
	return nil
}

// Next pops the front of the client's queue. When the queue is empty it
// returns the current wake channel instead; the caller waits on it outside
// the lock and calls Next again. Returns ErrClientGone if the registration
// vanished mid-poll.
func (s *State) Next(id uuid.UUID) (*Event, <-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.clients[id]
	if !ok {
		return nil, nil, ErrClientGone
	}
	if len(reg.queue) > 0 {
		ev := reg.queue[0]
		reg.queue = reg.queue[1:]
		return &ev, nil, nil
	}
	return nil, reg.wake, nil
}

// EndPoll clears the in-flight flag and stamps the poll-end time if the
// registration still exists. This is the only point after which the reaper
// may consider the client stale again.
func (s *State) EndPoll(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg, ok := s.clients[id]; ok {
		reg.inPoll = false
		reg.lastPollEnded = time.Now()
	}
}

// Resolve delivers a tool call response to the reply channel pending under
// (clientID, correlationID) and drops the entry.
func (s *State) Resolve(clientID, correlationID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStaleLocked()
	reg, ok := s.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}
	ch, ok := reg.pending[correlationID]
	if !ok {
		return ErrUnknownCorrelationID
	}
	delete(reg.pending, correlationID)
	ch <- Reply{Text: text}
	return nil
}

// PopForward pops the front of the failover queue. When the queue is empty
// it returns the current failover wake channel; the forwarder waits on it
// together with its shutdown signal.
func (s *State) PopForward() (*Command, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.forwardQueue) > 0 {
		cmd := s.forwardQueue[0]
		s.forwardQueue = s.forwardQueue[1:]
		return &cmd, nil
	}
	return nil, s.forwardWake
}

// ResolveForward delivers a relay result to the reply channel pending in
// the failover map and drops the entry. Reports whether an entry existed.
func (s *State) ResolveForward(correlationID uuid.UUID, reply Reply) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.forwardReplies[correlationID]
	if !ok {
		return false
	}
	delete(s.forwardReplies, correlationID)
	ch <- reply
	return true
}
