package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/auth"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/config"
	"github.com/maltedev/dealer-portal-scraper/internal/discovery"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// PageOpener is a running browser that can open pages.
type PageOpener interface {
	NewPage() (browser.Page, error)
	Close() error
}

// Launcher starts a browser for one job.
type Launcher func() (PageOpener, error)

// PlaywrightLauncher launches Chromium with the configured options.
func PlaywrightLauncher(cfg config.BrowserConfig) Launcher {
	return func() (PageOpener, error) {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Headless
		opts.Timeout = cfg.Timeout
		opts.NavigationTimeout = cfg.NavTimeout
		opts.ViewportWidth = cfg.ViewportWidth
		opts.ViewportHeight = cfg.ViewportHeight
		opts.AcceptLanguage = cfg.AcceptLanguage
		opts.TimezoneID = cfg.TimezoneID
		opts.Locale = cfg.Locale
		opts.ProxyServer = cfg.ProxyServer

		b, err := browser.New(opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Request describes one extraction job.
type Request struct {
	Portal string
	Items  []models.WorkItem
	// UseCookies starts from an imported session instead of logging in.
	UseCookies bool
	// Strategy forces fetch or browser; empty runs the probe.
	Strategy string
	Store    engine.Store
	Sink     engine.Sink
}

// Runner turns configuration into a wired engine and runs it. The browser
// it launches is always closed before Extract or Discover return.
type Runner struct {
	cfg      *config.Config
	launch   Launcher
	shots    *browser.Screenshotter
	recorder engine.Recorder
	logger   *slog.Logger
	base     *slog.Logger // per-job components add their own component and portal keys

	// Transport replaces the HTTP transport of the fetch client.
	Transport http.RoundTripper
}

func NewRunner(cfg *config.Config, launch Launcher, recorder engine.Recorder, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		launch:   launch,
		shots:    browser.NewScreenshotter(cfg.Storage.UploadsDir, logger),
		recorder: recorder,
		logger:   logger.With("component", "runner"),
		base:     logger,
	}
}

// CheckPortal reports a ConfigError for unknown portals.
func (r *Runner) CheckPortal(name string) error {
	_, err := r.cfg.Portal(name)
	return err
}

type prepared struct {
	portal  config.Portal
	site    adapter.SiteAdapter
	creds   models.Credentials
	session *models.Session
}

// prepare resolves everything that can fail on configuration alone, so a
// misconfigured job never starts a browser.
func (r *Runner) prepare(name string, useCookies bool) (*prepared, error) {
	portal, err := r.cfg.Portal(name)
	if err != nil {
		return nil, err
	}
	site, err := portal.NewAdapter()
	if err != nil {
		return nil, &models.ConfigError{Portal: portal.Name, Field: "adapter", Reason: err.Error()}
	}

	p := &prepared{portal: portal, site: site, session: &models.Session{}}
	if useCookies {
		src, err := portal.CookieSource()
		if err != nil {
			return nil, err
		}
		if p.session, err = auth.ImportSession(src); err != nil {
			return nil, err
		}
		// Credentials are optional with imported cookies; without them a
		// later re-login fails with a ConfigError.
		p.creds, _ = portal.Credentials()
		return p, nil
	}

	if p.creds, err = portal.Credentials(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Runner) fetchClient(portal config.Portal) (*fetch.Client, error) {
	opts := fetch.DefaultOptions()
	opts.BaseURL = portal.BaseURL
	opts.Timeout = r.cfg.Fetch.Timeout
	opts.MaxRedirects = r.cfg.Fetch.MaxRedirects

	client, err := fetch.New(opts, r.base.With("portal", portal.Name))
	if err != nil {
		return nil, &models.ConfigError{Portal: portal.Name, Field: "base_url", Reason: err.Error()}
	}
	if r.Transport != nil {
		client.SetTransport(r.Transport)
	}
	return client, nil
}

// withPage launches a browser, opens one page and runs fn with it. Page and
// browser are closed on every path.
func (r *Runner) withPage(fn func(browser.Page) error) (err error) {
	b, err := r.launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			r.logger.Warn("failed to close browser", "error", closeErr)
		}
	}()

	page, err := b.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			r.logger.Debug("failed to close page", "error", closeErr)
		}
	}()

	return fn(page)
}

// Extract runs the batch engine for req.
func (r *Runner) Extract(ctx context.Context, req Request) (models.Summary, error) {
	if req.Store == nil {
		return models.Summary{}, fmt.Errorf("extract: store is required")
	}
	p, err := r.prepare(req.Portal, req.UseCookies)
	if err != nil {
		return models.Summary{}, err
	}
	engCfg, err := r.cfg.EngineConfig(p.portal)
	if err != nil {
		return models.Summary{}, err
	}
	client, err := r.fetchClient(p.portal)
	if err != nil {
		return models.Summary{}, err
	}

	var summary models.Summary
	err = r.withPage(func(page browser.Page) error {
		eng, err := engine.New(engCfg, engine.Deps{
			Site:     p.site,
			Page:     page,
			Auth:     auth.NewAuthenticator(p.site, p.creds, r.shots, r.base),
			Fetcher:  client,
			Store:    req.Store,
			Sink:     req.Sink,
			Recorder: r.recorder,
		}, r.base)
		if err != nil {
			return err
		}
		eng.Force = req.Strategy

		summary, err = eng.Run(ctx, req.Items, p.session)
		return err
	})
	return summary, err
}

// Discover logs in (or imports cookies) and dumps the structure of the
// portal's entry page.
func (r *Runner) Discover(ctx context.Context, portal string, useCookies bool) (*discovery.Dump, error) {
	p, err := r.prepare(portal, useCookies)
	if err != nil {
		return nil, err
	}

	var dump *discovery.Dump
	err = r.withPage(func(page browser.Page) error {
		var err error
		session := p.session
		if session.Empty() {
			authenticator := auth.NewAuthenticator(p.site, p.creds, r.shots, r.base)
			if session, err = authenticator.Authenticate(ctx, page); err != nil {
				return err
			}
		}

		d := discovery.New(p.site, page, r.shots, discovery.NewClassifier(discovery.DefaultDenyList), r.base)
		dump, err = d.Discover(ctx, session)
		return err
	})
	return dump, err
}

// Listing parses work items from a saved listing page. When source is not a
// readable file it must be a portal path such as "/catalog?category=tile" or
// a URL on the portal's host, which is fetched once credentials or cookies
// have been validated.
func (r *Runner) Listing(ctx context.Context, portal, source string, useCookies bool) ([]models.WorkItem, error) {
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		cfgPortal, err := r.cfg.Portal(portal)
		if err != nil {
			return nil, err
		}
		site, err := cfgPortal.NewAdapter()
		if err != nil {
			return nil, &models.ConfigError{Portal: cfgPortal.Name, Field: "adapter", Reason: err.Error()}
		}
		html, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read listing page: %w", err)
		}
		return site.ParseListingPage(string(html))
	}

	if !isPortalLocation(source) {
		return nil, fmt.Errorf("listing source %q is neither a readable file nor a portal path or url", source)
	}

	p, err := r.prepare(portal, useCookies)
	if err != nil {
		return nil, err
	}
	client, err := r.fetchClient(p.portal)
	if err != nil {
		return nil, err
	}
	resp, err := client.Request(ctx, source, p.session, fetch.RequestOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}
	return p.site.ParseListingPage(string(resp.Body))
}

func isPortalLocation(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "http://")
}
