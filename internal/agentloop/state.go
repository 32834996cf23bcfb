package agentloop

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunState is the top-level state machine the orchestrator drives
// through, per spec §4.1: INIT -> HARNESS -> [RED_GATE?] -> ITERATION
// (repeated up to maxIters, each composed of LOCALIZE_TURN* and
// PATCH_TURN* sub-phases) -> TERMINAL.
type RunState string

const (
	StateInit      RunState = "init"
	StateHarness   RunState = "harness"
	StateRedGate   RunState = "red_gate"
	StateLocalize  RunState = "localize_turn"
	StatePatch     RunState = "patch_turn"
	StateTerminal  RunState = "terminal"
)

var validTransitions = map[RunState]map[RunState]bool{
	StateInit:     {StateHarness: true},
	StateHarness:  {StateRedGate: true, StateLocalize: true, StateTerminal: true},
	StateRedGate:  {StateLocalize: true, StateTerminal: true},
	StateLocalize: {StatePatch: true, StateLocalize: true, StateTerminal: true},
	StatePatch:    {StateLocalize: true, StatePatch: true, StateTerminal: true},
	StateTerminal: {},
}

// Snapshot captures the run's state at a point in time, handed to
// telemetry listeners.
type Snapshot struct {
	State     RunState
	Iteration int
	Elapsed   time.Duration
}

// StateMachine is a thread-safe wrapper (telemetry listeners may read
// concurrently with the single cooperative loop goroutine) around the
// run's current state.
type StateMachine struct {
	mu        sync.RWMutex
	state     RunState
	iteration int
	startTime time.Time
	logger    *zap.Logger
	listeners []func(from, to RunState, snap Snapshot)
}

// NewStateMachine creates a state machine starting in Init.
func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{state: StateInit, startTime: time.Now(), logger: logger}
}

func (sm *StateMachine) State() RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

func (sm *StateMachine) Snapshot() Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return Snapshot{State: sm.state, Iteration: sm.iteration, Elapsed: time.Since(sm.startTime)}
}

// Transition moves to a new state, rejecting transitions not named in
// validTransitions.
func (sm *StateMachine) Transition(to RunState) error {
	sm.mu.Lock()
	from := sm.state
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		return fmt.Errorf("invalid state transition: %s -> %s", from, to)
	}
	sm.state = to
	snap := Snapshot{State: to, Iteration: sm.iteration, Elapsed: time.Since(sm.startTime)}
	listeners := append([]func(from, to RunState, snap Snapshot){}, sm.listeners...)
	sm.mu.Unlock()

	if sm.logger != nil {
		sm.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// SetIteration records the current iteration index (1-based).
func (sm *StateMachine) SetIteration(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.iteration = n
}

// OnTransition registers a listener invoked on every state change.
func (sm *StateMachine) OnTransition(fn func(from, to RunState, snap Snapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// IsTerminal reports whether the machine has reached TERMINAL.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state == StateTerminal
}
