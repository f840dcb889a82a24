// File: internal/agent/runner.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/config"
	"github.com/xkilldash9x/gandalf-cli/internal/gandalf"
	"github.com/xkilldash9x/gandalf-cli/internal/llmclient"
	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// Challenge is the level interaction surface the runner drives. The
// concrete implementation is *gandalf.Client.
type Challenge interface {
	DescribeLevel(ctx context.Context, purpose string) (string, error)
	DescribeActiveLevel(ctx context.Context, purpose string) (string, error)
	SubmitPrompt(ctx context.Context, prompt, purpose string) (gandalf.PromptResult, error)
	SubmitPassword(ctx context.Context, password, purpose string) (gandalf.PasswordResult, error)
}

// RunSummary reports what a run achieved. Level is the level the session
// ended on, starting at 1 and incremented once per accepted password.
type RunSummary struct {
	RunID          string
	Rounds         int
	Level          int
	LevelsAdvanced int
	LastAnswer     string
}

// Runner is the orchestration loop: describe the level, consult the
// collaborator, execute its proposed actions, feed the outcomes back, and
// repeat until the round budget runs out.
type Runner struct {
	challenge  Challenge
	collab     llmclient.Collaborator
	renderer   *Renderer
	transcript *Transcript
	cfg        config.AgentConfig
	logger     *zap.Logger

	// OnAdvance fires with the new level URL each time a password is
	// accepted. Optional.
	OnAdvance func(url string)
}

func NewRunner(challenge Challenge, collab llmclient.Collaborator, renderer *Renderer, transcript *Transcript, cfg config.AgentConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Runner{
		challenge:  challenge,
		collab:     collab,
		renderer:   renderer,
		transcript: transcript,
		cfg:        cfg,
		logger:     logger.Named("agent"),
	}
}

// recoverable reports whether a challenge error should end the action, not
// the run. Typed interaction failures mean the page disagreed with us;
// anything else means the session itself is broken.
func recoverable(err error) bool {
	return errors.Is(err, gandalf.ErrEmptyInput) || errors.Is(err, gandalf.ErrInteractionTimeout)
}

// Run executes the loop until the round budget is exhausted, the
// collaborator stops proposing actions, or the session fails. Advancing a
// level resets the conversation history and refreshes the description.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: r.transcript.RunID(), Level: 1}

	description, err := r.challenge.DescribeLevel(ctx, "initial reconnaissance")
	if err != nil {
		r.transcript.Record("lakera_error", map[string]any{"error": err.Error(), "stage": "describe_level"})
		return summary, fmt.Errorf("fetching level description: %w", err)
	}
	r.transcript.Record("level_description", map[string]any{"level": summary.Level, "description": description})

	history := NewHistory(r.cfg.HistoryLimit)
	for round := 1; round <= r.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Rounds = round
		r.logger.Info("Starting round.",
			zap.Int("round", round),
			zap.Int("max_rounds", r.cfg.MaxRounds),
			zap.Int("level", summary.Level),
		)

		prompt, err := r.renderer.Render(PromptData{
			Description: description,
			Guidance:    r.cfg.Guidance,
			Round:       round,
			MaxRounds:   r.cfg.MaxRounds,
			Turns:       history.Turns(),
		})
		if err != nil {
			return summary, err
		}
		r.transcript.Record("llm_prompt", map[string]any{"round": round, "level": summary.Level, "prompt": prompt})

		reply, err := r.collab.Generate(ctx, prompt)
		if err != nil {
			r.transcript.Record("llm_error", map[string]any{"round": round, "level": summary.Level, "error": err.Error()})
			return summary, fmt.Errorf("consulting collaborator: %w", err)
		}
		r.transcript.Record("llm_response", map[string]any{"round": round, "level": summary.Level, "response": reply})

		actions := ExtractActions(reply)
		if len(actions) == 0 {
			// A collaborator with nothing left to propose ends the run;
			// asking again would only replay the same context.
			r.transcript.Record("no_actions", map[string]any{"round": round, "level": summary.Level, "response": reply})
			r.logger.Warn("Collaborator reply contained no actions; ending run.", zap.Int("round", round))
			break
		}

		turn := Turn{Round: round}
		advanced := false
		for _, action := range actions {
			switch action.Kind {
			case ActionPrompt:
				if err := r.runPromptAction(ctx, round, action.Text, &turn, &summary); err != nil {
					return summary, err
				}
			case ActionPassword:
				url, err := r.runPasswordAction(ctx, round, action.Text, &turn, &summary)
				if err != nil {
					return summary, err
				}
				if url != "" {
					description, err = r.advanceLevel(ctx, url, history, &summary)
					if err != nil {
						return summary, err
					}
					advanced = true
				}
			}
			if advanced {
				// Remaining actions were aimed at the solved level.
				break
			}
		}
		if !advanced {
			history.Add(turn)
		}
	}

	r.transcript.Record("run_complete", map[string]any{
		"rounds":          summary.Rounds,
		"level":           summary.Level,
		"levels_advanced": summary.LevelsAdvanced,
	})
	return summary, nil
}

func (r *Runner) runPromptAction(ctx context.Context, round int, text string, turn *Turn, summary *RunSummary) error {
	r.transcript.Record("prompt_submission", map[string]any{"round": round, "level": summary.Level, "prompt": text})
	record := ActionRecord{Kind: ActionPrompt, Input: text}

	result, err := r.challenge.SubmitPrompt(ctx, text, fmt.Sprintf("round %d attack", round))
	switch {
	case err != nil && recoverable(err):
		r.transcript.Record("prompt_error", map[string]any{"round": round, "level": summary.Level, "error": err.Error()})
		r.logger.Warn("Prompt submission failed, continuing.", zap.Int("round", round), zap.Error(err))
		record.Err = err.Error()
	case err != nil:
		r.transcript.Record("lakera_error", map[string]any{"round": round, "error": err.Error(), "stage": "submit_prompt"})
		return fmt.Errorf("submitting prompt: %w", err)
	case result.Kind == gandalf.PromptValidationError:
		r.transcript.Record("prompt_validation_error", map[string]any{"round": round, "level": summary.Level, "error": result.Text})
		record.ValidationError = result.Text
	default:
		record.Response = result.Text
		summary.LastAnswer = result.Text
	}

	turn.Actions = append(turn.Actions, record)
	return nil
}

// runPasswordAction returns the next level URL when the guess advanced the
// level, empty otherwise.
func (r *Runner) runPasswordAction(ctx context.Context, round int, guess string, turn *Turn, summary *RunSummary) (string, error) {
	r.transcript.Record("password_submission", map[string]any{"round": round, "level": summary.Level, "password": guess})
	record := ActionRecord{Kind: ActionPassword, Input: guess}

	result, err := r.challenge.SubmitPassword(ctx, guess, fmt.Sprintf("round %d guess", round))
	if err != nil {
		if recoverable(err) {
			r.transcript.Record("password_error", map[string]any{"round": round, "level": summary.Level, "error": err.Error()})
			r.logger.Warn("Password submission failed, continuing.", zap.Int("round", round), zap.Error(err))
			record.Err = err.Error()
			turn.Actions = append(turn.Actions, record)
			return "", nil
		}
		r.transcript.Record("lakera_error", map[string]any{"round": round, "error": err.Error(), "stage": "submit_password"})
		return "", fmt.Errorf("submitting password: %w", err)
	}

	record.Response = result.AlertText
	record.Advanced = result.Advanced()
	turn.Actions = append(turn.Actions, record)
	return result.NextLevelURL, nil
}

func (r *Runner) advanceLevel(ctx context.Context, url string, history *History, summary *RunSummary) (string, error) {
	summary.Level++
	summary.LevelsAdvanced++
	r.transcript.Record("next_level", map[string]any{"level": summary.Level, "url": url})
	r.logger.Info("Advanced to next level.", zap.Int("level", summary.Level), zap.String("url", url))
	if r.OnAdvance != nil {
		r.OnAdvance(url)
	}
	history.Reset()

	description, err := r.challenge.DescribeActiveLevel(ctx, "post-advance reconnaissance")
	if err != nil {
		r.transcript.Record("lakera_error", map[string]any{"error": err.Error(), "stage": "describe_active_level"})
		return "", fmt.Errorf("fetching next level description: %w", err)
	}
	r.transcript.Record("level_description", map[string]any{"level": summary.Level, "description": description})
	return description, nil
}
