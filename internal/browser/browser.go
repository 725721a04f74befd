package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/glb-scraper/internal/ratelimit"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"
)

// Browser owns one chromium process and hands out pages from it as
// sessions. At most MaxSessions sessions are open at a time.
type Browser struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	sessions *semaphore.Weighted
	limiter  ratelimit.Limiter
	opts     *Options
	logger   *slog.Logger
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	MaxSessions       int
	MaxScrolls        int
	NavigationRetries int
	UserAgent         string
	Locale            string
	ViewportWidth     int
	ViewportHeight    int
	Limiter           ratelimit.Limiter
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		MaxSessions:       2,
		MaxScrolls:        50,
		NavigationRetries: 2,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 1
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewJitterLimiter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run(&playwright.RunOptions{Verbose: false})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--log-level=3",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = &opts.UserAgent
	}
	if opts.Locale != "" {
		contextOpts.Locale = &opts.Locale
	}

	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:       pw,
		browser:  browser,
		context:  browserCtx,
		sessions: semaphore.NewWeighted(int64(opts.MaxSessions)),
		limiter:  opts.Limiter,
		opts:     opts,
		logger:   logger.With("component", "browser"),
	}, nil
}

// Open waits for a free session slot, then loads url in a new page.
func (b *Browser) Open(ctx context.Context, url string) (Session, error) {
	if err := b.sessions.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire session slot: %w", err)
	}
	release := func() { b.sessions.Release(1) }

	if err := b.limiter.Wait(ctx); err != nil {
		release()
		return nil, fmt.Errorf("failed waiting for rate limiter: %w", err)
	}

	page, err := b.context.NewPage()
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	if err := b.navigate(ctx, page, url); err != nil {
		page.Close()
		release()
		return nil, err
	}

	return newPageSession(ctx, page, release, b.opts.MaxScrolls, b.logger), nil
}

// Close shuts down the context, the chromium process and the playwright
// driver, in that order. All three are attempted even when one fails.
func (b *Browser) Close() error {
	var errs []error
	if b.context != nil {
		errs = append(errs, wrapClose("context", b.context.Close()))
	}
	if b.browser != nil {
		errs = append(errs, wrapClose("browser", b.browser.Close()))
	}
	if b.pw != nil {
		errs = append(errs, wrapClose("playwright", b.pw.Stop()))
	}
	return errors.Join(errs...)
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to close %s: %w", what, err)
}

// navigate loads url with DOMContentLoaded semantics, retrying with a
// linear backoff. Cancelling ctx ends the backoff early.
func (b *Browser) navigate(ctx context.Context, page playwright.Page, url string) error {
	attempts := max(b.opts.NavigationRetries, 1)
	logger := b.logger.With("url", url)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(time.Duration(attempt-1) * time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			logger.Info("retrying navigation", "attempt", attempt)
		}

		_, lastErr = page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if lastErr == nil {
			return nil
		}
		logger.Warn("navigation failed", "error", lastErr, "attempt", attempt)
	}

	return fmt.Errorf("failed to navigate to %s after %d attempts: %w", url, attempts, lastErr)
}
