package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
	ExtraHeaders      map[string]string
}

// DefaultUserAgent is sent by both the browser and the fetch client so the
// portal sees one consistent client.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		UserAgent:         DefaultUserAgent,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "en-US,en;q=0.9",
		TimezoneID:        "America/New_York",
		Locale:            "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = opts.Timeout
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// NewPage opens a tab in the shared context. A job keeps one page for its
// whole lifetime so cookies and navigation state stay in one place.
func (b *Browser) NewPage() (Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(b.opts.NavigationTimeout.Milliseconds()))

	return newPlaywrightPage(page, b.opts.NavigationTimeout), nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	b.logger.Debug("browser closed")
	return nil
}

// NavigateWithRetry loads url, retrying with a linear backoff.
func NavigateWithRetry(page Page, url string, maxRetries int, logger *slog.Logger) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i) * time.Second)
		}

		if err := page.Goto(url); err != nil {
			lastErr = err
			logger.Warn("navigation failed", "error", err, "attempt", i+1, "url", url)
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
