package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const navigateTimeout = 30 * time.Second

// Tab is the page showing the deck. It survives browser recycling: the
// manager reopens it on the new browser.
type Tab struct {
	mgr *Manager
	url string

	mu     sync.RWMutex
	page   *rod.Page
	router *rod.HijackRouter
}

// OpenTab opens pageURL in a new page with the manager's viewport,
// stealth and resource blocking, and reopens it after every recycle.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	t := &Tab{mgr: mgr, url: pageURL}
	if err := t.open(ctx, mgr.Browser()); err != nil {
		return nil, err
	}
	mgr.OnRecycle(func(ctx context.Context, b *rod.Browser) {
		if err := t.open(ctx, b); err != nil {
			mgr.cfg.Logger.Error("browser: reopen tab after recycle", "url", pageURL, "error", err)
		}
	})
	return t, nil
}

func (t *Tab) open(ctx context.Context, b *rod.Browser) error {
	if b == nil {
		return errors.New("browser: no active browser")
	}
	cfg := t.mgr.cfg

	var page *rod.Page
	var err error
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fmt.Errorf("browser: create tab: %w", err)
	}

	if err := setViewport(page, cfg.Viewport, 1); err != nil {
		_ = page.Close()
		return fmt.Errorf("browser: viewport: %w", err)
	}

	var router *rod.HijackRouter
	if len(cfg.BlockResources) > 0 {
		router = blockResources(page, cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(t.url); err != nil {
		_ = page.Close()
		return fmt.Errorf("browser: navigate %s: %w", t.url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", t.url, "error", err)
	}

	t.mu.Lock()
	old, oldRouter := t.page, t.router
	t.page, t.router = page, router
	t.mu.Unlock()
	if oldRouter != nil {
		_ = oldRouter.Stop()
	}
	if old != nil {
		_ = old.Close()
	}
	cfg.Logger.Info("browser: tab open", "url", t.url, "stealth", cfg.Stealth)
	return nil
}

// Page returns the current page.
func (t *Tab) Page() *rod.Page {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.page
}

// URL is the deck address.
func (t *Tab) URL() string { return t.url }

// Close closes the page.
func (t *Tab) Close() error {
	t.mu.Lock()
	page, router := t.page, t.router
	t.page, t.router = nil, nil
	t.mu.Unlock()
	if router != nil {
		_ = router.Stop()
	}
	if page != nil {
		return page.Close()
	}
	return nil
}

func setViewport(page *rod.Page, vp Viewport, scale float64) error {
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: scale,
	}.Call(page)
}
