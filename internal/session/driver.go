// Package session drives one connected game session to completion: it
// multiplexes the liveness supervisor's tick with the inbound frame stream,
// routes control frames internally, feeds output frames to the trigger
// engine, and terminates with a typed outcome.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evertext/everbot/internal/engineio"
	"github.com/evertext/everbot/internal/events"
	"github.com/evertext/everbot/internal/state"
	"github.com/evertext/everbot/internal/trigger"
)

// HeartbeatGrace is added to the negotiated ping interval before declaring
// the connection dead; it absorbs one missed server tick.
const HeartbeatGrace = 15 * time.Second

// StartRetryAfter is how long the screen may stay black after the start
// event before the initialization is resent, once.
const StartRetryAfter = 20 * time.Second

// Timings are the supervisor and driver clocks. Production uses Default-
// Timings (the config layer can stretch them); tests shrink them.
type Timings struct {
	SupervisorTick  time.Duration
	ActivityTimeout time.Duration
	SettleDelay     time.Duration
	HeartbeatGrace  time.Duration
	StartRetryAfter time.Duration
}

// DefaultTimings returns the production clock values.
func DefaultTimings() Timings {
	return Timings{
		SupervisorTick:  5 * time.Second,
		ActivityTimeout: 180 * time.Second,
		SettleDelay:     1500 * time.Millisecond,
		HeartbeatGrace:  HeartbeatGrace,
		StartRetryAfter: StartRetryAfter,
	}
}

// Transport is the duplex frame channel the driver owns. engineio.Conn
// satisfies it.
type Transport interface {
	ReadFrame() (string, error)
	SendEvent(name string, payload any) error
	Pong() error
	PingInterval() time.Duration
	SID() string
	Close() error
}

type startPayload struct {
	Args string `json:"args"`
}

type inputPayload struct {
	Input string `json:"input"`
}

// Driver owns one transport and runs its session loop to termination.
type Driver struct {
	transport Transport
	engine    *trigger.Engine
	logger    *log.Logger
	bus       events.Bus
	machine   *state.Machine
	timings   Timings
	account   string
	tracer    trace.Tracer
}

// DriverOption configures Driver construction.
type DriverOption func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(logger *log.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBus sets the event bus progress is published on.
func WithBus(bus events.Bus) DriverOption {
	return func(d *Driver) {
		d.bus = bus
	}
}

// WithTimings overrides the supervisor and driver clocks.
func WithTimings(timings Timings) DriverOption {
	return func(d *Driver) {
		d.timings = timings
	}
}

// WithAccountName tags published events and spans with the account.
func WithAccountName(name string) DriverOption {
	return func(d *Driver) {
		d.account = name
	}
}

// NewDriver builds a driver for a connected, namespace-joined transport.
func NewDriver(transport Transport, engine *trigger.Engine, options ...DriverOption) *Driver {
	driver := &Driver{
		transport: transport,
		engine:    engine,
		logger:    log.Default(),
		machine:   state.NewMachine(),
		timings:   DefaultTimings(),
		tracer:    otel.Tracer("everbot/session"),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(driver)
	}
	return driver
}

type inbound struct {
	frame string
	err   error
}

// Run drives the session until a terminal outcome. The driver owns the
// transport and closes it on exit.
func (d *Driver) Run(ctx context.Context) Outcome {
	ctx, span := d.tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("account", d.account),
		attribute.String("sid", d.transport.SID()),
	))
	defer span.End()

	outcome := d.loop(ctx)

	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	return outcome
}

func (d *Driver) loop(ctx context.Context) Outcome {
	done := make(chan struct{})
	defer close(done)
	defer func() {
		if err := d.transport.Close(); err != nil {
			d.logger.Debug("close transport", "err", err)
		}
	}()

	frames := make(chan inbound)
	go func() {
		for {
			frame, err := d.transport.ReadFrame()
			select {
			case frames <- inbound{frame: frame, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(d.timings.SupervisorTick)
	defer ticker.Stop()

	lastPing := time.Now()
	lastActivity := time.Now()
	var startSentAt time.Time

	for {
		select {
		case <-ctx.Done():
			return d.terminate(ctx, Outcome{Kind: KindIO, Reason: "run canceled", Err: ctx.Err()})

		case <-ticker.C:
			if outcome, fatal := d.supervise(lastPing, lastActivity, &startSentAt); fatal {
				return d.terminate(ctx, outcome)
			}

		case in := <-frames:
			if in.err != nil {
				return d.terminate(ctx, Outcome{Kind: KindIO, Reason: "transport read", Err: in.err})
			}
			outcome, terminal := d.handleFrame(ctx, in.frame, &lastPing, &lastActivity, &startSentAt)
			if terminal {
				return d.terminate(ctx, outcome)
			}
		}
	}
}

// supervise runs the three independent liveness checks. It reports a fatal
// outcome for the first violated policy and may resend the initialization
// command, once.
func (d *Driver) supervise(lastPing, lastActivity time.Time, startSentAt *time.Time) (Outcome, bool) {
	if time.Since(lastPing) > d.transport.PingInterval()+d.timings.HeartbeatGrace {
		d.logger.Error("no heartbeat from server", "last_ping", time.Since(lastPing))
		return Outcome{Kind: KindConnectionTimeout, Reason: "no heartbeat from server"}, true
	}

	if time.Since(lastActivity) > d.timings.ActivityTimeout {
		d.logger.Error("game output stalled", "last_activity", time.Since(lastActivity))
		return Outcome{Kind: KindActivityTimeout, Reason: "game output stalled"}, true
	}

	if !startSentAt.IsZero() &&
		time.Since(lastActivity) > d.timings.StartRetryAfter &&
		time.Since(*startSentAt) > d.timings.StartRetryAfter {
		d.logger.Warn("no activity after start, retrying initialization once")
		if err := d.transport.SendEvent(engineio.EventStart, startPayload{}); err != nil {
			return Outcome{Kind: KindIO, Reason: "resend start", Err: err}, true
		}
		*startSentAt = time.Time{}
	}

	return Outcome{}, false
}

func (d *Driver) handleFrame(ctx context.Context, frame string, lastPing, lastActivity, startSentAt *time.Time) (Outcome, bool) {
	switch {
	case engineio.IsPing(frame):
		*lastPing = time.Now()
		if err := d.transport.Pong(); err != nil {
			return Outcome{Kind: KindIO, Reason: "send pong", Err: err}, true
		}
		d.publish(events.EventTypeHeartbeat, events.SeverityInfo, nil)

	case engineio.IsEvent(frame):
		return d.handleEvent(frame, lastActivity)

	case engineio.IsNamespaceJoin(frame):
		return d.initialize(ctx, lastActivity, startSentAt)
	}
	// Frames outside the subprotocol subset are ignored.
	return Outcome{}, false
}

// initialize runs the post-join sequence: stop, settle, start. The settle
// delay suspends the whole loop, which is fine — nothing else is pending at
// this phase.
func (d *Driver) initialize(ctx context.Context, lastActivity, startSentAt *time.Time) (Outcome, bool) {
	d.transition(ctx, state.SessionNamespaceJoined, "namespace join acknowledged")
	d.logger.Info("namespace joined, initializing session")

	if err := d.transport.SendEvent(engineio.EventStop, struct{}{}); err != nil {
		return Outcome{Kind: KindIO, Reason: "send stop", Err: err}, true
	}

	select {
	case <-time.After(d.timings.SettleDelay):
	case <-ctx.Done():
		return Outcome{Kind: KindIO, Reason: "run canceled", Err: ctx.Err()}, true
	}

	if err := d.transport.SendEvent(engineio.EventStart, struct{}{}); err != nil {
		return Outcome{Kind: KindIO, Reason: "send start", Err: err}, true
	}
	now := time.Now()
	*lastActivity = now
	*startSentAt = now
	d.transition(ctx, state.SessionRunning, "start issued")
	return Outcome{}, false
}

func (d *Driver) handleEvent(frame string, lastActivity *time.Time) (Outcome, bool) {
	event, ok := engineio.ParseEvent(frame)
	if !ok {
		return Outcome{}, false
	}

	switch event.Name {
	case engineio.EventOutput:
		text, ok := engineio.OutputText(event.Payload)
		if !ok {
			return Outcome{}, false
		}
		*lastActivity = time.Now()
		return d.handleOutput(text)

	case engineio.EventIdleTimeout, engineio.EventDisconnect:
		return Outcome{Kind: KindServerClosed, Reason: event.Name}, true

	case engineio.EventActivityPing, engineio.EventUserCountUpdate:
		return Outcome{}, false
	}
	return Outcome{}, false
}

func (d *Driver) handleOutput(text string) (Outcome, bool) {
	d.logTerminal(text)

	actions, err := d.engine.OnOutput(text)
	for _, action := range actions {
		d.publish(events.EventTypeTriggerFired, events.SeverityInfo, action.Trigger)
		if sendErr := d.sendInput(action); sendErr != nil {
			return Outcome{Kind: KindIO, Reason: "send command", Err: sendErr}, true
		}
	}
	if err != nil {
		return mapTriggerError(err), true
	}
	return Outcome{}, false
}

// sendInput serializes one scripted command as an input event. No buffering
// or coalescing: one command per call, written synchronously.
func (d *Driver) sendInput(action trigger.Action) error {
	if err := d.transport.SendEvent(engineio.EventInput, inputPayload{Input: action.Command}); err != nil {
		return err
	}
	display := action.Command
	if action.Sensitive {
		display = "***"
	}
	d.logger.Info("command sent", "trigger", action.Trigger, "command", display)
	d.publish(events.EventTypeCommandSent, events.SeverityInfo, display)
	return nil
}

func (d *Driver) terminate(ctx context.Context, outcome Outcome) Outcome {
	d.transition(ctx, state.SessionTerminated, string(outcome.Kind))
	severity := events.SeverityInfo
	if !outcome.Success() {
		severity = events.SeverityError
	}
	d.publish(events.EventTypeSessionOutcome, severity, string(outcome.Kind))
	d.logger.Info("session terminated", "outcome", outcome.Kind, "reason", outcome.Reason)
	return outcome
}

func (d *Driver) transition(ctx context.Context, toState, reason string) {
	if err := d.machine.Transition(ctx, d.transport.SID(), toState, reason); err != nil {
		d.logger.Warn("state transition rejected", "to", toState, "err", err)
		return
	}
	d.publish(events.EventTypePhaseTransition, events.SeverityInfo, toState)
}

func (d *Driver) publish(eventType, severity string, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(events.Event{
		Type:      eventType,
		Account:   d.account,
		SessionID: d.transport.SID(),
		Payload:   payload,
		Severity:  severity,
	})
}

func (d *Driver) logTerminal(text string) {
	const maxTrace = 150
	clean := []rune(text)
	if len(clean) > maxTrace {
		clean = clean[:maxTrace]
	}
	line := string(clean)
	if len(line) > 0 {
		d.logger.Debug("terminal", "text", line)
	}
}

func mapTriggerError(err error) Outcome {
	switch {
	case errors.Is(err, trigger.ErrComplete):
		return Outcome{Kind: KindComplete}
	case errors.Is(err, trigger.ErrZigza):
		return Outcome{Kind: KindZigzaDetected, Reason: "zigza or incorrect restore code"}
	case errors.Is(err, trigger.ErrServerFull):
		return Outcome{Kind: KindServerFull, Reason: "restore account limit reached"}
	case errors.Is(err, trigger.ErrLoginRequired):
		return Outcome{Kind: KindLoginRequired, Reason: "session cookie rejected"}
	case errors.Is(err, trigger.ErrInvalidCommand):
		return Outcome{Kind: KindInvalidCommandRestart, Reason: "invalid command loop"}
	default:
		return Outcome{Kind: KindIO, Err: err}
	}
}
