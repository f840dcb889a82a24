// File: internal/gandalf/outcome.go
package gandalf

import "errors"

var (
	// ErrEmptyInput rejects prompts or passwords that are empty, or become
	// empty after sanitization.
	ErrEmptyInput = errors.New("gandalf: input empty after sanitization")

	// ErrInteractionTimeout indicates the page never reached the expected
	// state within the configured wait window.
	ErrInteractionTimeout = errors.New("gandalf: interaction timed out")

	// ErrDescriptionUnavailable indicates the level description did not
	// appear even after a reload.
	ErrDescriptionUnavailable = errors.New("gandalf: level description unavailable")
)

// PromptKind distinguishes the two page states a prompt submission can end
// in. Both are ordinary outcomes, not errors; callers branch on Kind.
type PromptKind string

const (
	// PromptAnswer means the model produced a fresh answer.
	PromptAnswer PromptKind = "answer"
	// PromptValidationError means the page rejected the prompt client side
	// before it reached the model.
	PromptValidationError PromptKind = "validation_error"
)

// PromptResult is the tagged outcome of a prompt submission.
type PromptResult struct {
	Kind PromptKind
	Text string
}

// PasswordResult is the outcome of a password guess. AlertText carries the
// newest alert shown in response. NextLevelURL is non-empty only when the
// guess was accepted and the advance button led to a new URL.
type PasswordResult struct {
	AlertText    string
	NextLevelURL string
}

// Advanced reports whether the guess unlocked the next level.
func (r PasswordResult) Advanced() bool { return r.NextLevelURL != "" }
