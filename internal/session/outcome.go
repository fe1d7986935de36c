package session

import "strings"

// Kind classifies how a session ended. Every kind except KindComplete is a
// failure; none are recoverable in-session. Callers decide whether a fresh
// session is worth starting from the kind alone.
type Kind string

const (
	// KindComplete is the success terminal: the scripted flow finished.
	KindComplete Kind = "session_complete"
	// KindMissingCode rejects a session upfront: no decrypted access code.
	KindMissingCode Kind = "missing_code"
	// KindHandshakeTimeout means no open packet arrived within the bound.
	KindHandshakeTimeout Kind = "handshake_timeout"
	// KindHandshakeFailed means the open packet was malformed or unexpected.
	KindHandshakeFailed Kind = "handshake_failed"
	// KindConnectionTimeout means server heartbeats stopped arriving.
	KindConnectionTimeout Kind = "connection_timeout"
	// KindActivityTimeout means game output stopped arriving.
	KindActivityTimeout Kind = "activity_timeout"
	// KindZigzaDetected means an anti-bot challenge or rejected restore code.
	KindZigzaDetected Kind = "zigza_detected"
	// KindServerFull means the restore-account limit was reached.
	KindServerFull Kind = "server_full"
	// KindLoginRequired means the session cookie is no longer accepted.
	KindLoginRequired Kind = "login_required"
	// KindInvalidCommandRestart means the game rejected a command and exited.
	KindInvalidCommandRestart Kind = "invalid_command_restart"
	// KindServerClosed means the server ended the session by event.
	KindServerClosed Kind = "server_closed"
	// KindIO covers transport errors and closed streams.
	KindIO Kind = "io_error"
)

// Outcome is the typed terminal result of one session.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

// Success reports whether the session completed its scripted flow.
func (o Outcome) Success() bool {
	return o.Kind == KindComplete
}

func (o Outcome) String() string {
	parts := []string{string(o.Kind)}
	if o.Reason != "" {
		parts = append(parts, o.Reason)
	}
	if o.Err != nil {
		parts = append(parts, o.Err.Error())
	}
	return strings.Join(parts, ": ")
}
