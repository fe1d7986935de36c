package engineio

import (
	"encoding/json"
	"strings"
)

// Event names this system consumes or emits.
const (
	EventOutput          = "output"
	EventInput           = "input"
	EventStop            = "stop"
	EventStart           = "start"
	EventIdleTimeout     = "idle_timeout"
	EventDisconnect      = "disconnect"
	EventActivityPing    = "activity_ping"
	EventUserCountUpdate = "user_count_update"
)

// Event is a decoded 42-frame: name plus raw payload.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// IsPing reports whether the frame is a server heartbeat ping.
func IsPing(frame string) bool {
	return frame == FramePing
}

// IsNamespaceJoin reports whether the frame acknowledges the namespace join.
func IsNamespaceJoin(frame string) bool {
	return strings.HasPrefix(frame, FrameNamespaceJoin)
}

// IsEvent reports whether the frame is an event frame.
func IsEvent(frame string) bool {
	return strings.HasPrefix(frame, FrameEvent)
}

// ParseEvent decodes an event frame. Frames that are not well-formed
// [name, payload] arrays are reported as not ok rather than as errors;
// the service occasionally emits frames this client has no use for.
func ParseEvent(frame string) (Event, bool) {
	if !IsEvent(frame) {
		return Event{}, false
	}
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(frame[len(FrameEvent):]), &elements); err != nil {
		return Event{}, false
	}
	if len(elements) == 0 {
		return Event{}, false
	}
	var name string
	if err := json.Unmarshal(elements[0], &name); err != nil {
		return Event{}, false
	}
	event := Event{Name: name}
	if len(elements) > 1 {
		event.Payload = elements[1]
	}
	return event, true
}

// OutputText extracts the terminal text from an output event payload.
func OutputText(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	var body struct {
		Data *string `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Data == nil {
		return "", false
	}
	return *body.Data, true
}
