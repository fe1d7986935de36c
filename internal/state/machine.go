// Package state validates session driver lifecycle transitions and keeps a
// local transition history for diagnostics.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session driver lifecycle states.
const (
	SessionConnected       = "connected"
	SessionNamespaceJoined = "namespace_joined"
	SessionRunning         = "running"
	SessionTerminated      = "terminated"
)

// Termination is reachable from every live state: the liveness supervisor
// and transport errors can end a session regardless of where it is.
var allowedTransitions = map[string]map[string]struct{}{
	SessionConnected: {
		SessionNamespaceJoined: {},
		SessionTerminated:      {},
	},
	SessionNamespaceJoined: {
		SessionRunning:    {},
		SessionTerminated: {},
	},
	SessionRunning: {
		SessionTerminated: {},
	},
}

// Recorder receives validated transition records.
type Recorder interface {
	RecordTransition(record TransitionRecord)
}

// Option configures Machine construction.
type Option func(*Machine)

// WithTracer configures the tracer used for state transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(machine *Machine) {
		if tracer == nil {
			return
		}
		machine.tracer = tracer
	}
}

// WithRecorder configures an external sink for transition records.
func WithRecorder(recorder Recorder) Option {
	return func(machine *Machine) {
		machine.recorder = recorder
	}
}

// TransitionRecord stores transition metadata for local history.
type TransitionRecord struct {
	SessionID string
	FromState string
	ToState   string
	Reason    string
	Timestamp time.Time
}

// IllegalTransitionError is returned for a disallowed transition.
type IllegalTransitionError struct {
	SessionID string
	FromState string
	ToState   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf(
		"cannot transition session %q from %q to %q",
		e.SessionID,
		e.FromState,
		e.ToState,
	)
}

// Is enables errors.Is checks for illegal transition failures.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)
	return ok
}

// Machine validates session lifecycle transitions.
type Machine struct {
	tracer   trace.Tracer
	recorder Recorder
	now      func() time.Time
	current  string
	history  []TransitionRecord
}

// NewMachine builds a machine starting in the connected state.
func NewMachine(options ...Option) *Machine {
	machine := &Machine{
		tracer:  otel.Tracer("everbot/state"),
		now:     time.Now,
		current: SessionConnected,
		history: []TransitionRecord{},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(machine)
	}
	return machine
}

// Current returns the machine's current state.
func (m *Machine) Current() string {
	if m == nil {
		return ""
	}
	return m.current
}

// Transition validates and records one state transition from the current state.
func (m *Machine) Transition(ctx context.Context, sessionID, toState, reason string) error {
	if m == nil {
		return errors.New("machine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sessionID = strings.TrimSpace(sessionID)
	toState = strings.TrimSpace(toState)
	fromState := m.current

	_, span := m.tracer.Start(ctx, "state.transition", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("from_state", fromState),
		attribute.String("to_state", toState),
		attribute.String("reason", strings.TrimSpace(reason)),
	))
	defer span.End()

	if toState == "" {
		err := errors.New("to state must not be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !isAllowed(fromState, toState) {
		err := &IllegalTransitionError{
			SessionID: sessionID,
			FromState: fromState,
			ToState:   toState,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	record := TransitionRecord{
		SessionID: sessionID,
		FromState: fromState,
		ToState:   toState,
		Reason:    strings.TrimSpace(reason),
		Timestamp: m.now().UTC(),
	}
	m.current = toState
	m.history = append(m.history, record)
	if m.recorder != nil {
		m.recorder.RecordTransition(record)
	}

	span.SetStatus(codes.Ok, "state transition recorded")
	return nil
}

// History returns transition records captured by this machine.
func (m *Machine) History() []TransitionRecord {
	if m == nil {
		return nil
	}
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

func isAllowed(fromState, toState string) bool {
	nextStates, ok := allowedTransitions[fromState]
	if !ok {
		return false
	}
	_, ok = nextStates[toState]
	return ok
}
