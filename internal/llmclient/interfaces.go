// File: internal/llmclient/interfaces.go
package llmclient

import "context"

// Collaborator produces a completion for a prompt. Implementations own
// their transport, retries, and pacing; callers see one blocking call.
type Collaborator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
