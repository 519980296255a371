package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

const (
	StrategyFetch   = "fetch"
	StrategyBrowser = "browser"
)

var errSearchControlMissing = errors.New("search control not found on page")

// Extractor pulls the data for one item. It returns *models.ItemError for
// item-level failures and a models.ErrSessionExpired error when the portal
// has dropped the session.
type Extractor interface {
	Name() string
	// Prepare readies the extractor for a (new) session.
	Prepare(ctx context.Context, session *models.Session) error
	Extract(ctx context.Context, item models.WorkItem, session *models.Session) (*models.Result, error)
}

// FetchExtractor reads authenticated detail pages over plain HTTP.
type FetchExtractor struct {
	site    adapter.SiteAdapter
	fetcher Fetcher
}

func NewFetchExtractor(site adapter.SiteAdapter, fetcher Fetcher) *FetchExtractor {
	return &FetchExtractor{site: site, fetcher: fetcher}
}

func (f *FetchExtractor) Name() string { return StrategyFetch }

func (f *FetchExtractor) Prepare(context.Context, *models.Session) error { return nil }

func (f *FetchExtractor) Extract(ctx context.Context, item models.WorkItem, session *models.Session) (*models.Result, error) {
	_, req, ok := f.site.FetchRequests(item)
	if !ok {
		return nil, &models.ItemError{Item: item.Code, Stage: "fetch", Err: errors.New("portal does not support fetch requests")}
	}

	resp, err := f.fetcher.Request(ctx, req.Path, session, fetch.RequestOptions{Query: req.Query})
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			return nil, err
		}
		return nil, &models.ItemError{Item: item.Code, Stage: "fetch", Err: err}
	}

	result, err := f.site.ParseDetailPage(string(resp.Body), item)
	if err != nil {
		return nil, &models.ItemError{Item: item.Code, Stage: "parse", Err: err}
	}
	return result, nil
}

// BrowserExtractor navigates the single job page to every item.
type BrowserExtractor struct {
	site   adapter.SiteAdapter
	page   browser.Page
	settle time.Duration
	logger *slog.Logger
}

func NewBrowserExtractor(site adapter.SiteAdapter, page browser.Page, settle time.Duration, logger *slog.Logger) *BrowserExtractor {
	return &BrowserExtractor{
		site:   site,
		page:   page,
		settle: settle,
		logger: logger,
	}
}

func (b *BrowserExtractor) Name() string { return StrategyBrowser }

// Prepare loads imported cookies into the browser and opens the entry page.
func (b *BrowserExtractor) Prepare(_ context.Context, session *models.Session) error {
	if session != nil && session.Source == models.SessionSourceImport {
		if err := b.page.SetCookies(session.Cookies); err != nil {
			return fmt.Errorf("failed to load imported cookies: %w", err)
		}
	}
	if err := b.page.Goto(b.site.EntryURL()); err != nil {
		return fmt.Errorf("failed to open entry page: %w", err)
	}
	return nil
}

func (b *BrowserExtractor) Extract(ctx context.Context, item models.WorkItem, _ *models.Session) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.ItemError{Item: item.Code, Stage: "navigate", Err: err}
	}
	if err := b.ensureSearchControl(item); err != nil {
		return nil, err
	}

	if err := b.site.NavigateToItem(b.page, item); err != nil {
		return nil, &models.ItemError{Item: item.Code, Stage: "navigate", Err: err}
	}
	if current := b.page.URL(); models.IsLoginURL(current) {
		return nil, &models.SessionExpiredError{Location: current}
	}

	html, err := b.page.Content()
	if err != nil {
		return nil, &models.ItemError{Item: item.Code, Stage: "content", Err: err}
	}

	result, err := b.site.ParseDetailPage(html, item)
	if err != nil {
		return nil, &models.ItemError{Item: item.Code, Stage: "parse", Err: err}
	}
	return result, nil
}

// ensureSearchControl treats a missing search control on a login-looking
// page as session expiry. Elsewhere it reloads the entry page once.
func (b *BrowserExtractor) ensureSearchControl(item models.WorkItem) error {
	control := b.site.SearchControl()
	if b.hasControl(control) {
		return nil
	}

	current := b.page.URL()
	if models.IsLoginURL(current) {
		return &models.SessionExpiredError{Location: current}
	}

	b.logger.Debug("search control missing, reloading entry page", "url", current, "item", item.Code)
	if err := b.page.Goto(b.site.EntryURL()); err != nil {
		return &models.ItemError{Item: item.Code, Stage: "navigate", Err: err}
	}
	_ = b.page.WaitForNavigation(b.settle)

	if b.hasControl(control) {
		return nil
	}
	if current := b.page.URL(); models.IsLoginURL(current) {
		return &models.SessionExpiredError{Location: current}
	}
	return &models.ItemError{Item: item.Code, Stage: "navigate", Err: errSearchControlMissing}
}

func (b *BrowserExtractor) hasControl(selector string) bool {
	n, err := b.page.Count(selector)
	return err == nil && n > 0
}
