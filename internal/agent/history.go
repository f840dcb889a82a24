// File: internal/agent/history.go
package agent

// ActionRecord is the remembered outcome of one executed action. Exactly
// one of Response, ValidationError, or Err is set; failures are kept so the
// collaborator can see what went wrong, not just what worked.
type ActionRecord struct {
	Kind  ActionKind
	Input string

	// Response is the guarded model's answer for a prompt, or the alert
	// text for a password guess.
	Response string
	// ValidationError is the page's client-side rejection of a prompt.
	ValidationError string
	// Err is the failure message when the action did not complete.
	Err string

	// Advanced marks a password guess that unlocked the next level.
	Advanced bool
}

// IsPrompt reports whether the record describes a prompt submission.
func (r ActionRecord) IsPrompt() bool { return r.Kind == ActionPrompt }

// Turn is one completed round of the conversation with the collaborator:
// every action it proposed, in execution order, with each outcome.
type Turn struct {
	Round   int
	Actions []ActionRecord
}

// History keeps the most recent turns, bounded so prompts to the
// collaborator cannot grow without limit. A non-positive limit keeps
// everything.
type History struct {
	limit int
	turns []Turn
}

func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Add appends a turn, evicting the oldest once past the limit.
func (h *History) Add(t Turn) {
	h.turns = append(h.turns, t)
	if h.limit > 0 && len(h.turns) > h.limit {
		h.turns = h.turns[len(h.turns)-h.limit:]
	}
}

// Reset drops all turns. Called when a new level starts so stale context
// from a solved level does not leak into the next one.
func (h *History) Reset() {
	h.turns = nil
}

// Turns returns the retained turns, oldest first.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int { return len(h.turns) }
