package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evertext/everbot/internal/account"
	"github.com/evertext/everbot/internal/engineio"
	"github.com/evertext/everbot/internal/events"
	"github.com/evertext/everbot/internal/trigger"
)

// Params describes one session to run.
type Params struct {
	Account          account.Account
	Mode             trigger.Mode
	Code             string
	Endpoint         string
	Cookie           string
	Timings          Timings
	HandshakeTimeout time.Duration
	Logger           *log.Logger
	Bus              events.Bus
}

// Run connects and drives one complete session for an account. Every session
// starts fresh: empty rolling buffer, cleared flags, new supervisor clocks.
func Run(ctx context.Context, params Params) Outcome {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}

	if strings.TrimSpace(params.Code) == "" {
		logger.Error("access code is empty or missing", "account", params.Account.Name)
		return Outcome{Kind: KindMissingCode, Reason: "access code is empty"}
	}

	dialOptions := []engineio.Option{}
	if params.HandshakeTimeout > 0 {
		dialOptions = append(dialOptions, engineio.WithHandshakeTimeout(params.HandshakeTimeout))
	}

	logger.Info("connecting", "account", params.Account.Name, "mode", params.Mode)
	conn, err := engineio.Dial(params.Endpoint, params.Cookie, dialOptions...)
	if err != nil {
		return dialOutcome(err)
	}
	logger.Info("connected", "sid", conn.SID(), "ping_interval", conn.PingInterval())

	engine := trigger.NewEngine(
		params.Mode,
		params.Code,
		trigger.WithTargetServer(params.Account.TargetServer),
		trigger.WithLogger(logger),
	)

	timings := params.Timings
	if timings.SupervisorTick <= 0 {
		timings = DefaultTimings()
	}

	driver := NewDriver(
		conn,
		engine,
		WithLogger(logger),
		WithBus(params.Bus),
		WithTimings(timings),
		WithAccountName(params.Account.Name),
	)
	return driver.Run(ctx)
}

func dialOutcome(err error) Outcome {
	switch {
	case errors.Is(err, engineio.ErrHandshakeTimeout):
		return Outcome{Kind: KindHandshakeTimeout, Reason: "no open packet", Err: err}
	case errors.Is(err, engineio.ErrHandshakeFailed):
		return Outcome{Kind: KindHandshakeFailed, Reason: "bad open packet", Err: err}
	case errors.Is(err, engineio.ErrStreamClosed):
		return Outcome{Kind: KindIO, Reason: "stream closed during handshake", Err: err}
	default:
		return Outcome{Kind: KindIO, Reason: "dial failed", Err: err}
	}
}
