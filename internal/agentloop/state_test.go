package agentloop

import (
	"testing"
)

func TestStateMachine_StartsInInit(t *testing.T) {
	sm := NewStateMachine(nil)
	if sm.State() != StateInit {
		t.Fatalf("got %s, want init", sm.State())
	}
	if sm.IsTerminal() {
		t.Fatal("a fresh state machine must not report terminal")
	}
}

func TestStateMachine_ValidTransitionSequence(t *testing.T) {
	sm := NewStateMachine(nil)
	seq := []RunState{StateHarness, StateRedGate, StateLocalize, StatePatch, StateLocalize, StatePatch, StateTerminal}
	for _, to := range seq {
		if err := sm.Transition(to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}
	if !sm.IsTerminal() {
		t.Fatal("expected terminal after reaching StateTerminal")
	}
}

func TestStateMachine_RejectsInvalidTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	// init -> patch_turn skips harness entirely.
	if err := sm.Transition(StatePatch); err == nil {
		t.Fatal("expected an error skipping straight from init to patch_turn")
	}
	if sm.State() != StateInit {
		t.Fatalf("a rejected transition must not move the state; got %s", sm.State())
	}
}

func TestStateMachine_TerminalIsAbsorbing(t *testing.T) {
	sm := NewStateMachine(nil)
	for _, to := range []RunState{StateHarness, StateTerminal} {
		if err := sm.Transition(to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}
	if err := sm.Transition(StateLocalize); err == nil {
		t.Fatal("expected terminal to reject any further transition")
	}
}

func TestStateMachine_OnTransitionNotifiesListeners(t *testing.T) {
	sm := NewStateMachine(nil)
	var gotFrom, gotTo RunState
	calls := 0
	sm.OnTransition(func(from, to RunState, snap Snapshot) {
		gotFrom, gotTo = from, to
		calls++
	})

	if err := sm.Transition(StateHarness); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one listener call, got %d", calls)
	}
	if gotFrom != StateInit || gotTo != StateHarness {
		t.Fatalf("got from=%s to=%s, want from=init to=harness", gotFrom, gotTo)
	}

	// A rejected transition must not fire listeners.
	if err := sm.Transition(StateTerminal); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := sm.Transition(StateHarness); err == nil {
		t.Fatal("expected rejection transitioning out of terminal")
	}
	if calls != 2 {
		t.Fatalf("expected listener to fire only for accepted transitions, got %d calls", calls)
	}
}

func TestStateMachine_SetIterationReflectedInSnapshot(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.SetIteration(3)
	snap := sm.Snapshot()
	if snap.Iteration != 3 {
		t.Fatalf("got iteration %d, want 3", snap.Iteration)
	}
}
