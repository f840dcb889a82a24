// File: internal/gandalf/channel.go
package gandalf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/browser"
	"github.com/xkilldash9x/gandalf-cli/internal/config"
	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// PageDriver is the slice of the browser driver the client consumes. The
// concrete implementation is *browser.Driver; tests substitute a scripted
// fake.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	LastText(ctx context.Context, selector string) (string, bool, error)
	AllTexts(ctx context.Context, selector string) ([]string, error)
	Fill(ctx context.Context, selector, text string) error
	SubmitForm(ctx context.Context, selector string) error
	ClickMatchingButton(ctx context.Context, selector string, keywords []string) (bool, error)
	DismissInterstitials(ctx context.Context, selector string, keywords []string) error
	WaitURLChange(ctx context.Context, previous string) (string, bool, error)
	RemoveAll(ctx context.Context, selector string) error
	PersistCookies(ctx context.Context)
}

// Client drives one Gandalf level through the page contract. Every public
// operation records exactly one interaction log entry, success or failure.
type Client struct {
	drv    PageDriver
	page   Page
	ilog   *InteractionLog
	cfg    config.GandalfConfig
	logger *zap.Logger
}

func NewClient(drv PageDriver, page Page, ilog *InteractionLog, cfg config.GandalfConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Client{drv: drv, page: page, ilog: ilog, cfg: cfg, logger: logger.Named("gandalf")}
}

// Page returns the locator contract the client was built with.
func (c *Client) Page() Page { return c.page }

// SubmitPrompt types a prompt into the level's input, submits it, and waits
// for the page to respond. The outcome is either a fresh answer or a client
// side validation error; both return as a PromptResult. The previous answer
// text is snapshotted before submission so a repeated identical answer is
// never mistaken for a new one.
func (c *Client) SubmitPrompt(ctx context.Context, prompt, purpose string) (PromptResult, error) {
	clean, request, err := c.prepareInput(prompt, purpose, "prompt")
	if err != nil {
		c.record(Event{Action: "submit_prompt", Purpose: purpose, Request: request, Err: err})
		return PromptResult{}, err
	}

	previous, _, err := c.drv.LastText(ctx, c.page.AnswerText)
	if err != nil {
		c.record(Event{Action: "submit_prompt", Purpose: purpose, Request: request, Err: err})
		return PromptResult{}, fmt.Errorf("snapshotting previous answer: %w", err)
	}

	if err := c.fillAndSubmit(ctx, c.page.PromptInput, clean); err != nil {
		c.record(Event{Action: "submit_prompt", Purpose: purpose, Request: request, Err: err})
		return PromptResult{}, err
	}

	result, err := browser.Poll(ctx, c.cfg.WaitTimeout, c.cfg.PollInterval,
		func(ctx context.Context) (PromptResult, bool, error) {
			errText, errFound, err := c.drv.LastText(ctx, c.page.ErrorText)
			if err != nil {
				return PromptResult{}, false, err
			}
			if errFound && strings.TrimSpace(errText) != "" {
				return PromptResult{Kind: PromptValidationError, Text: errText}, true, nil
			}
			answer, found, err := c.drv.LastText(ctx, c.page.AnswerText)
			if err != nil {
				return PromptResult{}, false, err
			}
			if done := classifyAnswer(answer, found, previous); done {
				return PromptResult{Kind: PromptAnswer, Text: answer}, true, nil
			}
			return PromptResult{}, false, nil
		})
	if err != nil {
		err = c.wrapWait(err)
		c.record(Event{Action: "submit_prompt", Purpose: purpose, Request: request, Err: err})
		return PromptResult{}, err
	}

	// The answer node sometimes attaches before its text streams in. Give
	// an empty answer a short grace window to fill.
	if result.Kind == PromptAnswer && strings.TrimSpace(result.Text) == "" {
		if text, ok := c.awaitNonEmptyAnswer(ctx); ok {
			result.Text = text
		}
	}

	c.drv.PersistCookies(ctx)
	c.record(Event{
		Action:   "submit_prompt",
		Purpose:  purpose,
		Request:  request,
		Response: result.Text,
		Extra:    map[string]any{"result_type": string(result.Kind)},
	})
	return result, nil
}

// SubmitPassword types a guess into the password input, submits it, and
// reads the newest alert. When the alert offers a next-level button the
// client clicks it and waits for the URL to change; the new URL rides back
// on the result. Alerts are removed before returning so they cannot block
// the next interaction.
func (c *Client) SubmitPassword(ctx context.Context, password, purpose string) (PasswordResult, error) {
	clean, request, err := c.prepareInput(password, purpose, "password")
	if err != nil {
		c.record(Event{Action: "submit_password", Purpose: purpose, Request: request, Err: err})
		return PasswordResult{}, err
	}

	if err := c.fillAndSubmit(ctx, c.page.PasswordInput, clean); err != nil {
		c.record(Event{Action: "submit_password", Purpose: purpose, Request: request, Err: err})
		return PasswordResult{}, err
	}

	alert, err := browser.Poll(ctx, c.cfg.WaitTimeout, c.cfg.PollInterval,
		func(ctx context.Context) (string, bool, error) {
			texts, err := c.drv.AllTexts(ctx, c.page.Alert)
			if err != nil {
				return "", false, err
			}
			if text, ok := newestNonEmpty(texts); ok {
				return text, true, nil
			}
			return "", false, nil
		})
	if err != nil {
		err = c.wrapWait(err)
		c.record(Event{Action: "submit_password", Purpose: purpose, Request: request, Err: err})
		return PasswordResult{}, err
	}

	result := PasswordResult{AlertText: alert}
	previousURL, err := c.drv.CurrentURL(ctx)
	if err != nil {
		c.logger.Warn("Could not read current URL before advancing.", zap.Error(err))
	}
	clicked, err := c.drv.ClickMatchingButton(ctx, c.page.Alert, c.page.NextLevelKeywords)
	if err != nil {
		c.logger.Warn("Next-level button click failed.", zap.Error(err))
	}
	if clicked {
		url, changed, err := c.waitURLChange(ctx, previousURL)
		if err != nil {
			c.logger.Warn("URL did not change after next-level click.", zap.Error(err))
		} else if changed {
			result.NextLevelURL = url
		}
	}
	if err := c.drv.RemoveAll(ctx, c.page.Alert); err != nil {
		c.logger.Warn("Could not clear alerts.", zap.Error(err))
	}

	c.drv.PersistCookies(ctx)
	extra := map[string]any{"advanced": result.Advanced()}
	if result.Advanced() {
		extra["next_level_url"] = result.NextLevelURL
	}
	c.record(Event{
		Action:   "submit_password",
		Purpose:  purpose,
		Request:  request,
		Response: alert,
		Extra:    extra,
	})
	return result, nil
}

// prepareInput validates and sanitizes raw text, returning the cleaned text
// and the request payload destined for the interaction log.
func (c *Client) prepareInput(text, purpose, field string) (string, map[string]any, error) {
	request := map[string]any{field: text}
	if strings.TrimSpace(text) == "" {
		return "", request, ErrEmptyInput
	}
	clean, modified := browser.SanitizeText(text)
	if modified {
		request[field] = clean
		request["sanitized"] = true
		request["original_"+field] = text
	}
	if strings.TrimSpace(clean) == "" {
		return "", request, ErrEmptyInput
	}
	return clean, request, nil
}

func (c *Client) fillAndSubmit(ctx context.Context, selector, text string) error {
	fillCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	if err := c.drv.Fill(fillCtx, selector, text); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("filling %s: %w", selector, ErrInteractionTimeout)
		}
		return fmt.Errorf("filling %s: %w", selector, err)
	}
	if err := c.drv.SubmitForm(ctx, selector); err != nil {
		return fmt.Errorf("submitting %s: %w", selector, err)
	}
	return nil
}

func (c *Client) awaitNonEmptyAnswer(ctx context.Context) (string, bool) {
	grace := c.cfg.AnswerGrace
	if grace <= 0 {
		return "", false
	}
	text, err := browser.Poll(ctx, grace, c.cfg.PollInterval,
		func(ctx context.Context) (string, bool, error) {
			answer, found, err := c.drv.LastText(ctx, c.page.AnswerText)
			if err != nil {
				return "", false, err
			}
			if found && strings.TrimSpace(answer) != "" {
				return answer, true, nil
			}
			return "", false, nil
		})
	if err != nil {
		return "", false
	}
	return text, true
}

// waitURLChange bounds the driver's own change detection with the client's
// wait window.
func (c *Client) waitURLChange(ctx context.Context, previous string) (string, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()
	return c.drv.WaitURLChange(waitCtx, previous)
}

func (c *Client) wrapWait(err error) error {
	if errors.Is(err, browser.ErrWaitTimeout) {
		return fmt.Errorf("%w: %v", ErrInteractionTimeout, err)
	}
	return err
}

func (c *Client) record(ev Event) {
	if c.ilog != nil {
		c.ilog.Append(ev)
	}
	if ev.Err != nil {
		c.logger.Warn("Interaction failed.", zap.String("action", ev.Action), zap.String("purpose", ev.Purpose), zap.Error(ev.Err))
	} else {
		c.logger.Debug("Interaction complete.", zap.String("action", ev.Action), zap.String("purpose", ev.Purpose))
	}
}

// classifyAnswer reports whether an observed answer counts as fresh. When no
// answer existed before submission, element presence alone is enough, even
// with empty text; the grace window handles late-arriving content. Otherwise
// the text must differ from the snapshot.
func classifyAnswer(answer string, present bool, previous string) bool {
	if !present {
		return false
	}
	if previous == "" {
		return true
	}
	return answer != previous
}

// newestNonEmpty returns the last entry with visible text, scanning from the
// end so stacked alerts resolve to the most recent one.
func newestNonEmpty(texts []string) (string, bool) {
	for i := len(texts) - 1; i >= 0; i-- {
		if strings.TrimSpace(texts[i]) != "" {
			return texts[i], true
		}
	}
	return "", false
}
