// Package feed ingests the venue's streaming market channel and turns book
// events into normalized price updates. The connection lifecycle is an
// explicit state machine so reconnection can be tested without a network.
package feed

import (
	"fmt"
	"sync"
	"time"
)

// State is the connection state of the ingestor.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transition is one recorded state change.
type Transition struct {
	From, To State
	At       time.Time
}

// allowed lists the legal successors of each state. Any state may fall back
// to Disconnected.
var allowed = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Subscribed, Disconnected},
	Subscribed:   {Streaming, Disconnected},
	Streaming:    {Disconnected},
}

// Machine tracks the current state and validates transitions.
type Machine struct {
	mu       sync.Mutex
	state    State
	history  []Transition
	maxHist  int
	onChange func(from, to State)
}

// NewMachine starts in Disconnected. onChange, if set, runs after every
// accepted transition.
func NewMachine(onChange func(from, to State)) *Machine {
	return &Machine{state: Disconnected, maxHist: 64, onChange: onChange}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves to next. It returns an error and leaves the state unchanged for
// an illegal transition. Moving to the current state is a no-op.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	from := m.state
	if from == next {
		m.mu.Unlock()
		return nil
	}
	if !legal(from, next) {
		m.mu.Unlock()
		return fmt.Errorf("feed: illegal transition %s -> %s", from, next)
	}
	m.state = next
	m.history = append(m.history, Transition{From: from, To: next, At: time.Now()})
	if len(m.history) > m.maxHist {
		m.history = m.history[len(m.history)-m.maxHist:]
	}
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(from, next)
	}
	return nil
}

// History returns the most recent transitions, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}

func legal(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
