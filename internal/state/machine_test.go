package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	records []TransitionRecord
}

func (s *recordingSink) RecordTransition(record TransitionRecord) {
	s.records = append(s.records, record)
}

func TestMachineStartsConnected(t *testing.T) {
	machine := NewMachine()
	if machine.Current() != SessionConnected {
		t.Fatalf("initial state = %q, want %q", machine.Current(), SessionConnected)
	}
	if len(machine.History()) != 0 {
		t.Fatalf("history = %v, want empty", machine.History())
	}
}

func TestMachineFullLifecycle(t *testing.T) {
	machine := NewMachine()
	ctx := context.Background()

	steps := []string{SessionNamespaceJoined, SessionRunning, SessionTerminated}
	for _, toState := range steps {
		if err := machine.Transition(ctx, "sid-1", toState, "test"); err != nil {
			t.Fatalf("transition to %q: %v", toState, err)
		}
	}
	if machine.Current() != SessionTerminated {
		t.Fatalf("state = %q, want %q", machine.Current(), SessionTerminated)
	}

	history := machine.History()
	if len(history) != len(steps) {
		t.Fatalf("history length = %d, want %d", len(history), len(steps))
	}
	if history[0].FromState != SessionConnected || history[0].ToState != SessionNamespaceJoined {
		t.Fatalf("first record = %+v", history[0])
	}
	if history[2].ToState != SessionTerminated {
		t.Fatalf("last record = %+v", history[2])
	}
}

func TestMachineTerminatedFromEveryLiveState(t *testing.T) {
	paths := [][]string{
		{SessionTerminated},
		{SessionNamespaceJoined, SessionTerminated},
		{SessionNamespaceJoined, SessionRunning, SessionTerminated},
	}

	for _, path := range paths {
		machine := NewMachine()
		for _, toState := range path {
			if err := machine.Transition(context.Background(), "sid-1", toState, "shutdown"); err != nil {
				t.Fatalf("path %v: transition to %q: %v", path, toState, err)
			}
		}
	}
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare []string
		toState string
	}{
		{name: "skip namespace join", toState: SessionRunning},
		{name: "backwards to connected", prepare: []string{SessionNamespaceJoined}, toState: SessionConnected},
		{name: "out of terminated", prepare: []string{SessionTerminated}, toState: SessionRunning},
		{name: "unknown state", toState: "suspended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewMachine()
			for _, toState := range tt.prepare {
				if err := machine.Transition(context.Background(), "sid-1", toState, ""); err != nil {
					t.Fatalf("prepare %q: %v", toState, err)
				}
			}

			before := machine.Current()
			err := machine.Transition(context.Background(), "sid-1", tt.toState, "")
			if !errors.Is(err, &IllegalTransitionError{}) {
				t.Fatalf("err = %v, want IllegalTransitionError", err)
			}
			if machine.Current() != before {
				t.Fatalf("state changed to %q on rejected transition", machine.Current())
			}
		})
	}
}

func TestMachineRejectsEmptyToState(t *testing.T) {
	machine := NewMachine()
	if err := machine.Transition(context.Background(), "sid-1", "  ", ""); err == nil {
		t.Fatal("expected error for empty to state")
	}
}

func TestMachineNotifiesRecorder(t *testing.T) {
	sink := &recordingSink{}
	stamp := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	machine := NewMachine(WithRecorder(sink))
	machine.now = func() time.Time { return stamp }

	if err := machine.Transition(context.Background(), " sid-7 ", SessionNamespaceJoined, " joined "); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	record := sink.records[0]
	if record.SessionID != "sid-7" {
		t.Fatalf("session id = %q, want trimmed", record.SessionID)
	}
	if record.Reason != "joined" {
		t.Fatalf("reason = %q, want trimmed", record.Reason)
	}
	if !record.Timestamp.Equal(stamp) {
		t.Fatalf("timestamp = %s, want %s", record.Timestamp, stamp)
	}
}

func TestMachineHistoryIsACopy(t *testing.T) {
	machine := NewMachine()
	if err := machine.Transition(context.Background(), "sid-1", SessionNamespaceJoined, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	history := machine.History()
	history[0].ToState = "mutated"
	if machine.History()[0].ToState != SessionNamespaceJoined {
		t.Fatal("history mutation leaked into machine")
	}
}

func TestNilMachineIsSafe(t *testing.T) {
	var machine *Machine
	if machine.Current() != "" {
		t.Fatal("nil machine current should be empty")
	}
	if machine.History() != nil {
		t.Fatal("nil machine history should be nil")
	}
	if err := machine.Transition(context.Background(), "sid-1", SessionTerminated, ""); err == nil {
		t.Fatal("nil machine transition should error")
	}
}
