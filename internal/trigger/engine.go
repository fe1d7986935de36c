// Package trigger recognizes scripted prompts in the game's terminal output
// and decides which command to send next. Matching runs against a rolling
// buffer of everything seen so far rather than individual frames, because the
// service splits logical prompts across transport frames. Acted-upon prompts
// are replaced with sentinels so they fire at most once.
package trigger

import (
	"errors"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

// Mode selects which branch of ambiguous prompts fires. It is fixed for the
// lifetime of a session.
type Mode string

const (
	// ModeDaily runs the daily command flow.
	ModeDaily Mode = "daily"
	// ModeHandout runs the handout collection flow.
	ModeHandout Mode = "handout"
)

// ParseMode normalizes a mode string.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ModeDaily):
		return ModeDaily, nil
	case string(ModeHandout):
		return ModeHandout, nil
	default:
		return "", errors.New("mode must be daily or handout")
	}
}

// Terminal conditions detected in the output stream. Each ends the session;
// the session driver maps them to outcomes.
var (
	// ErrComplete indicates the scripted flow finished successfully.
	ErrComplete = errors.New("trigger: session complete")
	// ErrZigza indicates an anti-bot challenge or a rejected restore code.
	ErrZigza = errors.New("trigger: zigza or incorrect restore code")
	// ErrServerFull indicates the restore-account limit was reached.
	ErrServerFull = errors.New("trigger: server restore limit reached")
	// ErrLoginRequired indicates the session cookie is no longer accepted.
	ErrLoginRequired = errors.New("trigger: login required")
	// ErrInvalidCommand indicates the game rejected a command and is exiting.
	ErrInvalidCommand = errors.New("trigger: invalid command loop")
)

// Prompt phrases recognized in the output stream.
const (
	phraseCommandPrompt = "Enter Command to use"
	phraseRestoreCode   = "Enter Restore code"
	phraseServerSelect  = "Which acc u want to Login"
	phraseManaPrompt    = "Press y to spend mana on event stages"
	phraseNextEvent     = "next: Go to the next event"
	phraseRefillMana    = "DO U WANT TO REFILL MANA"
	phrasePotionSelect  = "Enter 1, 2 or 3 to select potion"
	phraseStamRefill    = "number of stam100 potions to refill"
	phraseMoreCommands  = "Press y to perform more commands"
)

// defaultServer marks an account with no explicit server preference.
const defaultServer = "Default"

// serverEntryPattern captures "<index>--><label>(<name>)" entries from the
// login server list. The only regex in the engine; everything else is plain
// substring containment.
var serverEntryPattern = regexp.MustCompile(`(\d+)-->.*?\((.*?)\)`)

// completionKeywords gate the more-commands prompt: any of these in the
// buffer means the scripted work actually finished.
var completionKeywords = []string{"success", "finish", "done", "already"}

// Action is one command to send, tagged with the prompt that produced it.
// Sensitive marks commands whose value must not appear in traces or logs.
type Action struct {
	Trigger   string
	Command   string
	Sensitive bool
}

// Engine scans accumulated output against the ordered prompt table.
type Engine struct {
	buffer *Buffer
	mode   Mode
	code   string
	target string
	logger *log.Logger

	autoSent    bool
	handoutSent bool

	phase Phase
}

// Option configures Engine construction.
type Option func(*Engine)

// WithTargetServer sets the account's preferred server label.
func WithTargetServer(target string) Option {
	return func(e *Engine) {
		e.target = strings.TrimSpace(target)
	}
}

// WithLogger sets the logger used for scan diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine for one session. The access code must already
// be decrypted; the session driver rejects empty codes before dialing.
func NewEngine(mode Mode, code string, options ...Option) *Engine {
	engine := &Engine{
		buffer: NewBuffer(),
		mode:   mode,
		code:   code,
		logger: log.Default(),
		phase:  PhaseConnected,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(engine)
	}
	return engine
}

// OnOutput appends one output chunk and scans the buffer. It returns the
// commands to send, in order. A non-nil error is a terminal condition;
// any returned actions were matched before the condition was detected and
// should still be dispatched.
func (e *Engine) OnOutput(chunk string) ([]Action, error) {
	e.buffer.Append(chunk)

	var actions []Action
	emit := func(trigger, command string) {
		actions = append(actions, Action{Trigger: trigger, Command: command})
	}

	if e.consume(phraseCommandPrompt, "command_prompt") {
		if e.mode == ModeHandout {
			emit(phraseCommandPrompt, "ho")
		} else {
			emit(phraseCommandPrompt, "d")
		}
	}

	if e.consume(phraseRestoreCode, "restore_code") {
		actions = append(actions, Action{Trigger: phraseRestoreCode, Command: e.code, Sensitive: true})
	}

	if e.buffer.Contains(phraseServerSelect) && e.target != "" && e.target != defaultServer {
		emit(phraseServerSelect, e.selectServer())
		e.buffer.Consume(phraseServerSelect, sentinel("server_select"))
	}

	if e.consume(phraseManaPrompt, "mana_prompt") {
		switch {
		case e.mode == ModeHandout && !e.handoutSent:
			emit(phraseManaPrompt, "ho")
			e.handoutSent = true
		default:
			emit(phraseManaPrompt, "y")
		}
	}

	if e.consume(phraseNextEvent, "next_event") {
		if e.autoSent {
			emit(phraseNextEvent, "exit")
		} else {
			emit(phraseNextEvent, "auto")
			e.autoSent = true
		}
	}

	if e.consume(phraseRefillMana, "refill_mana") {
		emit(phraseRefillMana, "y")
	}
	if e.consume(phrasePotionSelect, "potion_select") {
		emit(phrasePotionSelect, "3")
	}
	if e.consume(phraseStamRefill, "stam_refill") {
		emit(phraseStamRefill, "1")
	}

	if e.buffer.Contains(phraseMoreCommands) {
		if e.workConfirmed() {
			return actions, ErrComplete
		}
		// Exit prompt seen but nothing confirms the work finished; go back
		// to the menu and keep going. The liveness supervisor is the
		// backstop if this loops forever.
		e.logger.Warn("exit prompt seen before work confirmed, returning to menu")
		e.buffer.Consume(phraseMoreCommands, sentinel("more_commands"))
		emit(phraseMoreCommands, "y")
	}

	if err := e.scanErrors(); err != nil {
		return actions, err
	}
	return actions, nil
}

// Flags reports the recurring-prompt flags, for diagnostics.
func (e *Engine) Flags() (autoSent, handoutSent bool) {
	return e.autoSent, e.handoutSent
}

// Buffer exposes the rolling buffer for diagnostics and tests.
func (e *Engine) Buffer() *Buffer {
	return e.buffer
}

// consume reports whether the phrase is present, replacing it with the
// rule's sentinel when it is.
func (e *Engine) consume(phrase, name string) bool {
	if !e.buffer.Contains(phrase) {
		return false
	}
	e.buffer.Consume(phrase, sentinel(name))
	return true
}

func (e *Engine) workConfirmed() bool {
	if e.autoSent || e.handoutSent {
		return true
	}
	for _, keyword := range completionKeywords {
		if e.buffer.ContainsFold(keyword) {
			return true
		}
	}
	return false
}

// selectServer picks the index of the first listed server whose label
// contains the target name. A target of "all" (any case) matches the
// "All of them" entry. Falls back to index 1 when nothing matches.
func (e *Engine) selectServer() string {
	for _, match := range serverEntryPattern.FindAllStringSubmatch(e.buffer.String(), -1) {
		label := match[2]
		if strings.Contains(label, e.target) {
			return match[1]
		}
		if strings.EqualFold(e.target, "all") && strings.Contains(label, "All of them") {
			return match[1]
		}
	}
	e.logger.Warn("target server not found in list, defaulting to first entry", "target", e.target)
	return "1"
}

// scanErrors checks the terminal error phrases. These never consume: the
// session is over either way, and the surrounding context stays intact for
// the trace log.
func (e *Engine) scanErrors() error {
	if e.buffer.Contains("Zigza error") || e.buffer.Contains("Incorrect Restore Code") {
		return ErrZigza
	}
	if e.buffer.Contains("maximum limit of restore accounts") {
		return ErrServerFull
	}
	if e.buffer.Contains("restricted only for logged in users") {
		return ErrLoginRequired
	}
	if e.buffer.Contains("Invalid Command") && e.buffer.Contains("Exiting Now") {
		return ErrInvalidCommand
	}
	return nil
}

func sentinel(name string) string {
	return "[ack:" + name + "]"
}
