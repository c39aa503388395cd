package smartid

import (
	"errors"
	"fmt"
	"slices"
)

// State is a step of the challenge/response flow.
type State string

const (
	StateCreated        State = "CREATED"
	StateAwaitingRemote State = "AWAITING_REMOTE"
	StatePolling        State = "POLLING"
	StateVerified       State = "VERIFIED"
	StateDecoded        State = "DECODED"
	StateFailed         State = "FAILED"
)

// A still-running provider session returns the flow to AWAITING_REMOTE.
var transitions = map[State][]State{
	StateCreated:        {StateAwaitingRemote},
	StateAwaitingRemote: {StatePolling},
	StatePolling:        {StateAwaitingRemote, StateVerified},
	StateVerified:       {StateDecoded},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDecoded || s == StateFailed
}

// TransitionObserver is notified of every state change.
type TransitionObserver interface {
	ObserveTransition(state string)
}

// Flow tracks one pass through the state machine. A flow spans two requests:
// initiation ends in AWAITING_REMOTE and completion resumes from there.
type Flow struct {
	SessionID string
	state     State
	history   []State
	err       error
	observer  TransitionObserver
}

// NewFlow starts a flow in CREATED.
func NewFlow(observer TransitionObserver) *Flow {
	return resume("", StateCreated, observer)
}

// ResumeFlow picks up a stored session awaiting the remote party.
func ResumeFlow(sessionID string, observer TransitionObserver) *Flow {
	return resume(sessionID, StateAwaitingRemote, observer)
}

func resume(sessionID string, state State, observer TransitionObserver) *Flow {
	f := &Flow{SessionID: sessionID, state: state, history: []State{state}, observer: observer}
	f.observe(state)
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	return f.state
}

// History returns the visited states in order.
func (f *Flow) History() []State {
	return slices.Clone(f.history)
}

// Err returns the failure cause once the flow is FAILED.
func (f *Flow) Err() error {
	return f.err
}

// Advance moves to next if the transition is allowed.
func (f *Flow) Advance(next State) error {
	if !slices.Contains(transitions[f.state], next) {
		return fmt.Errorf("illegal transition %s -> %s", f.state, next)
	}
	f.enter(next)
	return nil
}

// Fail moves the flow to FAILED and returns err for convenient chaining.
func (f *Flow) Fail(err error) error {
	if f.state == StateFailed {
		return err
	}
	f.err = err
	f.enter(StateFailed)
	return err
}

func (f *Flow) enter(s State) {
	f.state = s
	f.history = append(f.history, s)
	f.observe(s)
}

func (f *Flow) observe(s State) {
	if f.observer != nil {
		f.observer.ObserveTransition(string(s))
	}
}

// ErrSessionRunning is returned while the holder has not yet answered on
// their device. Callers poll again.
var ErrSessionRunning = errors.New("smart-id session is still running")
