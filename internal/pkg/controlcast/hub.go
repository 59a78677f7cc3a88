package controlcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

const (
	// Max connections per streamer
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
	// Per-connection send buffer
	subscriberBuffer = 16
)

// Message envelope types pushed down a control stream.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeCommand  = "command"
)

// Subscriber is one live overlay control connection. Messages arrive on C;
// the connection handler drains it until Disconnect or stream close.
type Subscriber struct {
	UserID uint
	C      chan []byte
}

// TrySend queues data without blocking. A full buffer means the consumer
// stopped draining; the message is dropped and false is returned so the hub
// can evict the subscriber.
func (s *Subscriber) TrySend(data []byte) bool {
	select {
	case s.C <- data:
		return true
	default:
		return false
	}
}

// Hub is the per-streamer control fan-out registry. It also folds commands
// into a per-streamer state snapshot so new connections start with the
// current control state instead of an arbitrary default.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Subscriber]struct{}
	states     map[uint]State
	totalConns int
}

// NewHub creates an empty control hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[uint]map[*Subscriber]struct{}),
		states: make(map[uint]State),
	}
}

// Connect registers a new control connection for a streamer and queues the
// current state snapshot as its first message.
func (h *Hub) Connect(userID uint) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Subscriber]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, errors.New("user connection limit reached")
	}

	sub := &Subscriber{UserID: userID, C: make(chan []byte, subscriberBuffer)}
	m[sub] = struct{}{}
	h.totalConns++

	state, ok := h.states[userID]
	if !ok {
		state = NewState()
		h.states[userID] = state
	}
	if snapshot, err := encodeSnapshot(state); err == nil {
		sub.TrySend(snapshot)
	}

	return sub, nil
}

// Disconnect removes a subscriber; the last one for a streamer drops the
// registry entry.
func (h *Hub) Disconnect(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	m, ok := h.conns[sub.UserID]
	if !ok {
		return
	}
	if _, exists := m[sub]; !exists {
		return
	}
	delete(m, sub)
	h.totalConns--
	close(sub.C)
	if len(m) == 0 {
		delete(h.conns, sub.UserID)
	}
}

// Dispatch folds the command into the streamer's state and fans it out to
// every live connection. Subscribers that fail to accept the push are evicted
// instead of failing the broadcaster.
func (h *Hub) Dispatch(userID uint, cmd Command) {
	data, err := encodeCommand(cmd)
	if err != nil {
		log.Errorf("[ControlCast] Failed to encode command: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[userID]
	if !ok {
		state = NewState()
	}
	state.Apply(cmd)
	h.states[userID] = state

	var dead []*Subscriber
	for sub := range h.conns[userID] {
		if !sub.TrySend(data) {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		log.Warnf("[ControlCast] Evicting stalled connection for user %d", userID)
		h.removeLocked(sub)
	}
}

// ConnectionCount returns the number of live connections for a streamer.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// CurrentState returns the folded control state for a streamer.
func (h *Hub) CurrentState(userID uint) State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if state, ok := h.states[userID]; ok {
		return state
	}
	return NewState()
}

type envelope struct {
	Type     string   `json:"type"`
	Command  *Command `json:"command,omitempty"`
	Snapshot *State   `json:"snapshot,omitempty"`
}

func encodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(envelope{Type: MessageTypeCommand, Command: &cmd})
}

func encodeSnapshot(state State) ([]byte, error) {
	return json.Marshal(envelope{Type: MessageTypeSnapshot, Snapshot: &state})
}
