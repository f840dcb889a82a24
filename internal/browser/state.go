// File: internal/browser/state.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// StoredCookie is the on-disk cookie representation. Expiry is stored as a
// number of seconds since the epoch and coerced to an integer when replayed.
type StoredCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expiry   float64 `json:"expiry,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StorageSnapshot mirrors the page's web storage areas.
type StorageSnapshot struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

// IsEmpty reports whether the snapshot holds no entries at all.
func (s StorageSnapshot) IsEmpty() bool {
	return len(s.Local) == 0 && len(s.Session) == 0
}

// ReadCookieFile loads persisted cookies from path.
func ReadCookieFile(path string) ([]StoredCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []StoredCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("malformed cookie file %s: %w", path, err)
	}
	return cookies, nil
}

// WriteCookieFile overwrites path with the given cookie set.
func WriteCookieFile(path string, cookies []StoredCookie) error {
	data, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadStorageFile loads a persisted storage snapshot from path.
func ReadStorageFile(path string) (StorageSnapshot, error) {
	var snap StorageSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("malformed storage file %s: %w", path, err)
	}
	return snap, nil
}

// WriteStorageFile overwrites path with the given snapshot.
func WriteStorageFile(path string, snap StorageSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// cookieParams converts stored cookies into CDP set-cookie parameters,
// coercing fractional expiries to whole seconds.
func cookieParams(cookies []StoredCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expiry > 0 {
			expiry := cdp.TimeSinceEpoch(time.Unix(int64(c.Expiry), 0))
			p.Expires = &expiry
		}
		params = append(params, p)
	}
	return params
}

// captureCookies reads the current cookie set from the browser.
func (d *Driver) captureCookies(ctx context.Context) ([]StoredCookie, error) {
	var raw []*network.Cookie
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]StoredCookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expiry:   c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

// restoreCookies replays persisted cookies into the browser. Returns true
// when at least one cookie was applied.
func (d *Driver) restoreCookies(ctx context.Context, cookies []StoredCookie) (bool, error) {
	params := cookieParams(cookies)
	if len(params) == 0 {
		return false, nil
	}
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	}))
	if err != nil {
		return false, err
	}
	return true, nil
}

const captureStorageScript = `(function() {
    const result = { local: {}, session: {} };
    try {
        for (let i = 0; i < localStorage.length; i++) {
            const key = localStorage.key(i);
            if (key !== null) { result.local[key] = localStorage.getItem(key); }
        }
        for (let i = 0; i < sessionStorage.length; i++) {
            const key = sessionStorage.key(i);
            if (key !== null) { result.session[key] = sessionStorage.getItem(key); }
        }
    } catch (e) { /* storage disabled */ }
    return result;
})()`

// CaptureStorage snapshots local and session storage. Best effort: a
// failure returns an empty snapshot, never an error.
func (d *Driver) CaptureStorage(ctx context.Context) StorageSnapshot {
	var snap StorageSnapshot
	if err := d.runActions(ctx, chromedp.Evaluate(captureStorageScript, &snap)); err != nil {
		d.logger.Debug("Could not capture web storage.", zap.Error(err))
		return StorageSnapshot{}
	}
	return snap
}

// RestoreStorage replays a snapshot into the page's storage areas. Best
// effort: returns true only when a non-empty snapshot was applied.
func (d *Driver) RestoreStorage(ctx context.Context, snap StorageSnapshot) bool {
	if snap.IsEmpty() {
		return false
	}
	script := fmt.Sprintf(`(function(ls, ss) {
        Object.keys(ls).forEach(key => {
            try { localStorage.setItem(key, ls[key]); } catch (_) {}
        });
        Object.keys(ss).forEach(key => {
            try { sessionStorage.setItem(key, ss[key]); } catch (_) {}
        });
        return true;
    })(%s, %s)`, jsonEncode(nonNilMap(snap.Local)), jsonEncode(nonNilMap(snap.Session)))

	var ok bool
	if err := d.runActions(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		d.logger.Debug("Could not restore web storage.", zap.Error(err))
		return false
	}
	return true
}

// PersistCookies writes the live cookie set to the configured file.
// Persistence is a convenience, not a correctness requirement: failures are
// logged and swallowed.
func (d *Driver) PersistCookies(ctx context.Context) {
	if d.cookieFile == "" {
		return
	}
	cookies, err := d.captureCookies(ctx)
	if err != nil {
		d.logger.Warn("Failed to capture cookies for persistence.", zap.Error(err))
		return
	}
	if err := WriteCookieFile(d.cookieFile, cookies); err != nil {
		d.logger.Warn("Failed to write cookie file.", zap.String("path", d.cookieFile), zap.Error(err))
	}
}

// PersistStorage writes the live storage snapshot to the configured file,
// with the same best-effort policy as PersistCookies.
func (d *Driver) PersistStorage(ctx context.Context) {
	if d.storageFile == "" {
		return
	}
	snap := d.CaptureStorage(ctx)
	if err := WriteStorageFile(d.storageFile, snap); err != nil {
		d.logger.Warn("Failed to write storage file.", zap.String("path", d.storageFile), zap.Error(err))
	}
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
