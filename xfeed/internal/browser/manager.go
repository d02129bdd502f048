// Package browser owns the Chrome process behind the feed: launch or
// connect, a persistent profile directory for session cookies, and stealth
// pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an already running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// UserDataDir is the Chrome profile directory. It keeps the login
	// session across restarts. Ignored with RemoteURL.
	UserDataDir string

	// Headless runs the local Chrome without a window. The first login
	// usually needs a window.
	Headless bool

	// BlockResources lists resource types dropped by every page:
	// images, fonts, media, stylesheets.
	BlockResources []string

	Logger *slog.Logger
}

// Manager manages the Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	routers []*rod.HijackRouter
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to RemoteURL, and returns the handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}

	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.UserDataDir != "" {
			if err := os.MkdirAll(m.cfg.UserDataDir, 0o700); err != nil {
				return nil, fmt.Errorf("browser: profile dir: %w", err)
			}
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "profile", m.cfg.UserDataDir, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return b, nil
}

// Browser returns the current handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// NewPage opens a stealth page with resource blocking applied.
func (m *Manager) NewPage() (*rod.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser == nil {
		return nil, errors.New("browser: not started")
	}

	page, err := stealth.Page(m.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1280, Height: 900, DeviceScaleFactor: 1,
	}); err != nil {
		m.cfg.Logger.Debug("browser: set viewport failed", "error", err)
	}
	if len(m.cfg.BlockResources) > 0 {
		m.routers = append(m.routers, blockResources(page, m.cfg.BlockResources))
	}
	return page, nil
}

// Close shuts Chrome down. A remote Chrome is disconnected, not killed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) cleanup() error {
	var errs []error
	for _, r := range m.routers {
		errs = append(errs, r.Stop())
	}
	m.routers = nil
	if m.browser != nil {
		errs = append(errs, m.browser.Close())
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return errors.Join(errs...)
}
