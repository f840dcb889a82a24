// File: internal/browser/driver.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNoBrowser indicates no usable Chrome/Chromium executable was found.
var ErrNoBrowser = errors.New("could not find a Chrome/Chromium binary in PATH")

// ErrElementMissing indicates the page does not contain an element the
// fixed page contract expects. The engine fails loudly instead of guessing.
var ErrElementMissing = errors.New("expected element is not present")

// binaryCandidates are probed in order when no explicit binary is
// configured.
var binaryCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// Options configures a Driver.
type Options struct {
	// BaseURL is loaded at startup so persisted cookies can be applied to
	// the right origin before the first real navigation.
	BaseURL    string
	Headless   bool
	BinaryPath string
	Args       []string

	// SettleTimeout bounds navigation loading; zero disables the forced
	// stop.
	SettleTimeout time.Duration
	// WaitTimeout and PollInterval drive the driver's own bounded waits
	// (overlay detachment, URL changes).
	WaitTimeout  time.Duration
	PollInterval time.Duration

	CookieFile  string
	StorageFile string
}

// Driver owns one browser session: process lifecycle, navigation, overlay
// dismissal, form submission and cookie/storage persistence.
type Driver struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	baseURL       string
	settleTimeout time.Duration
	waitTimeout   time.Duration
	pollInterval  time.Duration
	cookieFile    string
	storageFile   string

	isClosed bool
}

// NewDriver starts the browser, loads the base URL and restores any
// persisted session state (storage first, then cookies, then one refresh).
func NewDriver(ctx context.Context, opts Options, logger *zap.Logger) (*Driver, error) {
	binary, err := resolveBinary(opts.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts, binary)...)
	sessionCtx, sessionCancel := chromedp.NewContext(allocCtx)

	d := &Driver{
		allocCancel:   allocCancel,
		ctx:           sessionCtx,
		cancel:        sessionCancel,
		logger:        logger.Named("browser"),
		baseURL:       opts.BaseURL,
		settleTimeout: opts.SettleTimeout,
		waitTimeout:   opts.WaitTimeout,
		pollInterval:  opts.PollInterval,
		cookieFile:    opts.CookieFile,
		storageFile:   opts.StorageFile,
	}

	// Establish the CDP connection before anything else.
	if err := chromedp.Run(sessionCtx); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	d.logger.Info("Browser session started.", zap.String("binary", binary), zap.Bool("headless", opts.Headless))

	if err := d.Navigate(ctx, opts.BaseURL); err != nil {
		d.release()
		return nil, fmt.Errorf("failed to load base URL %s: %w", opts.BaseURL, err)
	}

	if d.restorePersistedState(ctx) {
		if err := d.Reload(ctx); err != nil {
			d.logger.Warn("Refresh after state restore failed.", zap.Error(err))
		}
	}

	return d, nil
}

// resolveBinary returns the explicit binary when configured, otherwise the
// first known executable name found on PATH.
func resolveBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range binaryCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoBrowser
}

// allocatorOptions translates Options into chromedp allocator options.
func allocatorOptions(opts Options, binary string) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", opts.Headless),
	)
	if binary != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(binary))
	}
	for _, arg := range opts.Args {
		name, value, found := strings.Cut(arg, "=")
		name = strings.TrimPrefix(name, "--")
		if found {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	return allocOpts
}

// restorePersistedState replays the storage snapshot before the cookies;
// cookie application can trigger a server-side session merge that depends
// on storage being in place. Returns whether anything was restored.
func (d *Driver) restorePersistedState(ctx context.Context) bool {
	restored := false

	if d.storageFile != "" {
		if snap, err := ReadStorageFile(d.storageFile); err == nil {
			if d.RestoreStorage(ctx, snap) {
				d.logger.Debug("Restored web storage snapshot.", zap.String("path", d.storageFile))
				restored = true
			}
		} else if !os.IsNotExist(err) {
			d.logger.Warn("Could not read storage snapshot.", zap.Error(err))
		}
	}

	if d.cookieFile != "" {
		if cookies, err := ReadCookieFile(d.cookieFile); err == nil {
			ok, err := d.restoreCookies(ctx, cookies)
			if err != nil {
				d.logger.Warn("Could not replay persisted cookies.", zap.Error(err))
			} else if ok {
				d.logger.Debug("Restored cookies.", zap.Int("count", len(cookies)))
				restored = true
			}
		} else if !os.IsNotExist(err) {
			d.logger.Warn("Could not read cookie file.", zap.Error(err))
		}
	}

	return restored
}

// runActions executes chromedp actions against the session, respecting both
// the session lifetime and the caller's context.
func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits up to the settle timeout for the document to
// reach readyState "complete". Slow third-party resources must not block
// the interaction loop: on timeout the load is forcibly stopped instead.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.runActions(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if d.settleTimeout <= 0 {
		return nil
	}

	_, err := Poll(ctx, d.settleTimeout, d.pollInterval, func(c context.Context) (struct{}, bool, error) {
		var state string
		if err := d.runActions(c, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, state == "complete", nil
	})
	if errors.Is(err, ErrWaitTimeout) {
		d.logger.Debug("Page did not settle in time; stopping load.", zap.String("url", url))
		if stopErr := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
			return page.StopLoading().Do(c)
		})); stopErr != nil {
			d.logger.Debug("Could not stop page load.", zap.Error(stopErr))
		}
		return nil
	}
	return err
}

// Reload refreshes the current page and lets it settle like Navigate does.
func (d *Driver) Reload(ctx context.Context) error {
	url, err := d.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return d.Navigate(ctx, url)
}

// CurrentURL returns the page's current location.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("could not read current URL: %w", err)
	}
	return url, nil
}

// LastText returns the trimmed text of the last element matching sel, or
// ("", false) when none match. Answer and alert elements accumulate on the
// page; the newest entry is authoritative.
func (d *Driver) LastText(ctx context.Context, sel string) (string, bool, error) {
	texts, err := d.AllTexts(ctx, sel)
	if err != nil || len(texts) == 0 {
		return "", false, err
	}
	return texts[len(texts)-1], true, nil
}

// AllTexts returns the trimmed text of every element matching sel, in
// document order.
func (d *Driver) AllTexts(ctx context.Context, sel string) ([]string, error) {
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => (el.textContent || "").trim())`,
		jsonEncode(sel))
	var texts []string
	if err := d.runActions(ctx, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, fmt.Errorf("could not read text for %q: %w", sel, err)
	}
	return texts, nil
}

// Exists reports whether any element matches sel.
func (d *Driver) Exists(ctx context.Context, sel string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsonEncode(sel))
	var found bool
	if err := d.runActions(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Fill types text into the element matching sel, replacing any existing
// value. The caller is responsible for sanitizing the text first.
func (d *Driver) Fill(ctx context.Context, sel, text string) error {
	err := d.runActions(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("could not fill %q: %w", sel, err)
	}
	return nil
}

// SubmitForm submits the form containing the element matching inputSel.
// Preference order: a real click on the form's submit control; a
// script-invoked click when the control is covered by another element
// (overlay transitions leave stale elements temporarily non-interactable);
// direct form submission as the last resort.
func (d *Driver) SubmitForm(ctx context.Context, inputSel string) error {
	shape, err := d.formShape(ctx, inputSel)
	if err != nil {
		return err
	}

	switch shape {
	case "no-element":
		return fmt.Errorf("%w: %q", ErrElementMissing, inputSel)
	case "no-form":
		return fmt.Errorf("%w: no ancestor form for %q", ErrElementMissing, inputSel)
	case "form":
		// The form has no submit control at all.
		return d.submitDirect(ctx, inputSel)
	}

	submitPath := fmt.Sprintf(
		`document.querySelector(%s).closest("form").querySelector("button[type='submit']")`,
		jsonEncode(inputSel))

	if err := d.runActions(ctx, chromedp.Click(submitPath, chromedp.ByJSPath)); err == nil {
		return nil
	} else {
		d.logger.Debug("Submit click was intercepted; retrying via script.", zap.Error(err))
	}

	var clicked bool
	script := fmt.Sprintf(`(function() { %s.click(); return true; })()`, submitPath)
	if err := d.runActions(ctx, chromedp.Evaluate(script, &clicked)); err == nil {
		return nil
	} else {
		d.logger.Debug("Script click failed; falling back to form submission.", zap.Error(err))
	}

	return d.submitDirect(ctx, inputSel)
}

// formShape classifies the submission path for the form around inputSel.
func (d *Driver) formShape(ctx context.Context, inputSel string) (string, error) {
	script := fmt.Sprintf(`(function(sel) {
        const el = document.querySelector(sel);
        if (!el) { return "no-element"; }
        const form = el.closest("form");
        if (!form) { return "no-form"; }
        return form.querySelector("button[type='submit']") ? "button" : "form";
    })(%s)`, jsonEncode(inputSel))

	var shape string
	if err := d.runActions(ctx, chromedp.Evaluate(script, &shape)); err != nil {
		return "", fmt.Errorf("could not inspect form for %q: %w", inputSel, err)
	}
	return shape, nil
}

func (d *Driver) submitDirect(ctx context.Context, inputSel string) error {
	script := fmt.Sprintf(`(function(sel) {
        const form = document.querySelector(sel).closest("form");
        if (typeof form.requestSubmit === "function") { form.requestSubmit(); } else { form.submit(); }
        return true;
    })(%s)`, jsonEncode(inputSel))

	var ok bool
	if err := d.runActions(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("form submission for %q failed: %w", inputSel, err)
	}
	return nil
}

// ClickMatchingButton clicks the first button inside containerSel whose
// label contains one of the keywords (case-insensitive). Returns whether a
// button was clicked.
func (d *Driver) ClickMatchingButton(ctx context.Context, containerSel string, keywords []string) (bool, error) {
	script := fmt.Sprintf(`(function(sel, words) {
        const container = document.querySelector(sel);
        if (!container) { return false; }
        const buttons = container.querySelectorAll("button");
        for (const btn of buttons) {
            const label = (btn.textContent || "").trim().toLowerCase();
            if (words.some(word => label.includes(word))) {
                btn.click();
                return true;
            }
        }
        return false;
    })(%s, %s)`, jsonEncode(containerSel), jsonEncode(keywords))

	var clicked bool
	if err := d.runActions(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, fmt.Errorf("could not click button in %q: %w", containerSel, err)
	}
	return clicked, nil
}

// WaitDetached blocks until no element matches sel or the driver's wait
// timeout elapses.
func (d *Driver) WaitDetached(ctx context.Context, sel string) error {
	_, err := Poll(ctx, d.waitTimeout, d.pollInterval, func(c context.Context) (struct{}, bool, error) {
		exists, err := d.Exists(c, sel)
		if err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, !exists, nil
	})
	return err
}

// WaitURLChange blocks until the page URL differs from previous. On timeout
// it returns ("", false, nil): an unchanged URL is an outcome, not an
// error.
func (d *Driver) WaitURLChange(ctx context.Context, previous string) (string, bool, error) {
	url, err := Poll(ctx, d.waitTimeout, d.pollInterval, func(c context.Context) (string, bool, error) {
		current, err := d.CurrentURL(c)
		if err != nil {
			return "", false, err
		}
		return current, current != previous, nil
	})
	if errors.Is(err, ErrWaitTimeout) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// DismissInterstitials clicks through blocking overlays. Resuming a
// persisted session can land on an overlay that otherwise blocks every
// subsequent wait indefinitely.
func (d *Driver) DismissInterstitials(ctx context.Context, overlaySel string, keywords []string) error {
	for range 3 {
		clicked, err := d.ClickMatchingButton(ctx, overlaySel, keywords)
		if err != nil {
			return err
		}
		if !clicked {
			return nil
		}
		if err := d.WaitDetached(ctx, overlaySel); err != nil {
			if errors.Is(err, ErrWaitTimeout) {
				d.logger.Debug("Overlay did not detach after click.", zap.String("selector", overlaySel))
				continue
			}
			return err
		}
	}
	return nil
}

// RemoveAll deletes every element matching sel from the DOM.
func (d *Driver) RemoveAll(ctx context.Context, sel string) error {
	script := fmt.Sprintf(`(function(sel) {
        document.querySelectorAll(sel).forEach(el => el.remove());
        return true;
    })(%s)`, jsonEncode(sel))

	var ok bool
	if err := d.runActions(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("could not remove %q: %w", sel, err)
	}
	return nil
}

// PollInterval exposes the driver's configured polling cadence so callers
// share one rhythm for their own bounded waits.
func (d *Driver) PollInterval() time.Duration { return d.pollInterval }

// Close persists session state and shuts down the browser. Safe to call
// more than once. Persistence failures never block the shutdown.
func (d *Driver) Close(ctx context.Context) {
	if d.isClosed {
		return
	}
	d.isClosed = true

	// The caller's context may already be canceled; persistence still
	// needs the CDP connection, so detach from it with a fresh deadline.
	persistCtx, cancel := context.WithTimeout(Detach(ctx), 10*time.Second)
	defer cancel()
	d.PersistCookies(persistCtx)
	d.PersistStorage(persistCtx)

	d.release()
	d.logger.Info("Browser session closed.")
}

func (d *Driver) release() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
}

// jsonEncode safely embeds a value into a JavaScript snippet.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
