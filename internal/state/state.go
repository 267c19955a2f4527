// Package state tracks the lifecycle of one enhancement job.
package state

import (
	"fmt"
	"sync"
)

// Kind enumerates processing states.
type Kind int

const (
	Idle Kind = iota
	Processing
	Completed
	Error
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of a job. Progress and ETASeconds apply to Processing,
// OutputPath to Completed and Message to Error.
type State struct {
	Kind       Kind
	Progress   int
	ETASeconds *int
	OutputPath string
	Message    string
}

func (s State) String() string {
	switch s.Kind {
	case Processing:
		if s.ETASeconds != nil {
			return fmt.Sprintf("processing %d%% (eta %ds)", s.Progress, *s.ETASeconds)
		}
		return fmt.Sprintf("processing %d%%", s.Progress)
	case Completed:
		return "completed: " + s.OutputPath
	case Error:
		return "error: " + s.Message
	default:
		return s.Kind.String()
	}
}

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s.Kind == Completed || s.Kind == Error
}

// Listener receives every accepted transition in order.
type Listener func(State)

// Machine enforces Idle -> Processing* -> Completed|Error -> Idle.
type Machine struct {
	mu        sync.Mutex
	current   State
	listeners []Listener
}

// NewMachine returns a machine in the Idle state.
func NewMachine(listeners ...Listener) *Machine {
	return &Machine{listeners: listeners}
}

// Subscribe adds a listener.
func (m *Machine) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Current returns the latest state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Progress moves to Processing. Progress is clamped to [0, 100].
func (m *Machine) Progress(progress int, etaSeconds *int) error {
	progress = min(max(progress, 0), 100)
	return m.transition(State{Kind: Processing, Progress: progress, ETASeconds: etaSeconds})
}

// Complete moves to Completed.
func (m *Machine) Complete(outputPath string) error {
	return m.transition(State{Kind: Completed, OutputPath: outputPath})
}

// Fail moves to Error.
func (m *Machine) Fail(message string) error {
	return m.transition(State{Kind: Error, Message: message})
}

// Reset returns a finished machine to Idle.
func (m *Machine) Reset() error {
	return m.transition(State{Kind: Idle})
}

func (m *Machine) transition(next State) error {
	m.mu.Lock()
	if !allowed(m.current.Kind, next.Kind) {
		from := m.current.Kind
		m.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", from, next.Kind)
	}
	m.current = next
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}

func allowed(from, to Kind) bool {
	switch from {
	case Idle:
		return to == Processing
	case Processing:
		return to == Processing || to == Completed || to == Error
	case Completed, Error:
		return to == Idle
	default:
		return false
	}
}
