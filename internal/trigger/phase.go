package trigger

// Phase is an advisory tag describing where in the scripted flow a session
// nominally is. It exists for diagnostics only: the engine's real state is
// the buffer's consumed markers plus the two recurring-prompt flags, and
// nothing currently advances the phase past PhaseConnected.
type Phase string

const (
	PhaseConnected        Phase = "connected"
	PhaseWaitingForPrompt Phase = "waiting_for_command_prompt"
	PhaseSentCommand      Phase = "sent_command"
	PhaseWaitingForCode   Phase = "waiting_for_restore_prompt"
	PhaseSentCode         Phase = "sent_code"
	PhaseWaitingForServer Phase = "waiting_for_server_list"
	PhaseServerSelected   Phase = "server_selected"
	PhaseRapidFire        Phase = "rapid_fire"
	PhaseFinished         Phase = "finished"
)

// Phase returns the advisory phase tag.
func (e *Engine) Phase() Phase {
	return e.phase
}
