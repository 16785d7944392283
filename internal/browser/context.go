// Package browser provides the browser-session transport to the admin API.
//
// Some deployments only expose the admin API to an interactive, cookie
// authenticated session. With TRANSPORT=browser the service drives a Chrome
// profile that already holds such a session and performs every request as a
// fetch() inside the page, so the session cookies ride along.
//
// Key features:
//   - Thread-safe context holder for sharing across goroutines
//   - Browser restart capability for error recovery
//   - Transport implementing the same Get contract as the HTTP client
package browser

import (
	"context"
	"sync"

	"cmonreports/internal/logging"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Options configures the Chrome instance.
type Options struct {
	UserDataDir string // Profile directory holding the authenticated session
	Headless    bool
}

// ContextHolder provides thread-safe access to a browser context.
//
// Thread-safety:
//   - All methods use mutex locking
//   - Context updates are atomic
type ContextHolder struct {
	mu          sync.RWMutex
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	generation  uint64 // Bumped on every restart
	log         zerolog.Logger
}

// NewContextHolder starts a browser and wraps its context.
//
// Chrome itself is launched lazily by chromedp on the first Run.
func NewContextHolder(opts Options) *ContextHolder {
	h := &ContextHolder{opts: opts, log: logging.Component("browser")}
	h.ctx, h.cancel, h.allocCancel = newContext(opts, h.log)
	return h
}

// Get returns the current browser context and its generation.
func (h *ContextHolder) Get() (context.Context, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx, h.generation
}

// Restart cancels the current browser and starts a fresh one.
//
// Used for error recovery when the browser stops responding. The
// generation lets callers notice that per-browser state (like the page
// they navigated to) is gone.
func (h *ContextHolder) Restart() {
	h.log.Warn().Msg("⚠️  Restarting browser context...")

	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelLocked()
	h.ctx, h.cancel, h.allocCancel = newContext(h.opts, h.log)
	h.generation++
}

// Cancel cancels the current browser context and cleans up resources.
//
// This should be called on application shutdown.
func (h *ContextHolder) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked()
}

func (h *ContextHolder) cancelLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.allocCancel != nil {
		h.allocCancel()
		h.allocCancel = nil
	}
}

// newContext creates an allocator for the configured profile and a browser
// context on top of it.
func newContext(opts Options, log zerolog.Logger) (context.Context, context.CancelFunc, context.CancelFunc) {
	log.Debug().Str("profile", opts.UserDataDir).Msg("  → Creating new browser context...")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(opts.UserDataDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Warn().Msgf(format, args...)
		}),
	)

	return ctx, cancel, allocCancel
}
