// File: internal/gandalf/describe.go
package gandalf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/browser"
)

// DescribeLevel navigates to the configured base URL and returns the level
// description shown there. Use it when starting cold.
func (c *Client) DescribeLevel(ctx context.Context, purpose string) (string, error) {
	if err := c.drv.Navigate(ctx, c.cfg.BaseURL); err != nil {
		err = fmt.Errorf("navigating to %s: %w", c.cfg.BaseURL, err)
		c.record(Event{Action: "describe_level", Purpose: purpose, Err: err})
		return "", err
	}
	return c.fetchDescription(ctx, "describe_level", purpose)
}

// DescribeActiveLevel returns the description of whatever level the session
// is already on, without navigating. Use it after advancing mid-run.
func (c *Client) DescribeActiveLevel(ctx context.Context, purpose string) (string, error) {
	return c.fetchDescription(ctx, "describe_active_level", purpose)
}

// fetchDescription clears interstitials and waits for the description node.
// A missing description gets one reload before the typed failure; stale
// renders after a restored session usually recover on refresh.
func (c *Client) fetchDescription(ctx context.Context, action, purpose string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := c.drv.DismissInterstitials(ctx, c.page.Alert, c.page.InterstitialKeywords); err != nil {
			c.logger.Debug("Interstitial sweep failed.", zap.Error(err))
		}
		text, err := browser.Poll(ctx, c.cfg.WaitTimeout, c.cfg.PollInterval,
			func(ctx context.Context) (string, bool, error) {
				desc, found, err := c.drv.LastText(ctx, c.page.Description)
				if err != nil {
					return "", false, err
				}
				if found && strings.TrimSpace(desc) != "" {
					return strings.TrimSpace(desc), true, nil
				}
				return "", false, nil
			})
		if err == nil {
			c.record(Event{Action: action, Purpose: purpose, Response: text})
			return text, nil
		}
		if !errors.Is(err, browser.ErrWaitTimeout) {
			c.record(Event{Action: action, Purpose: purpose, Err: err})
			return "", err
		}
		lastErr = err
		if attempt == 1 {
			c.logger.Info("Description missing, reloading once.", zap.String("action", action))
			if err := c.drv.Reload(ctx); err != nil {
				c.logger.Warn("Reload failed during description fetch.", zap.Error(err))
			}
		}
	}
	err := fmt.Errorf("%w: %v", ErrDescriptionUnavailable, lastErr)
	c.record(Event{Action: action, Purpose: purpose, Err: err})
	return "", err
}
