// Package adapter holds the vendor-specific knowledge the extraction core
// depends on: login selectors, login verification, navigation and parsing.
package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// LoginSelectors are ordered candidate lists; the first selector that
// matches wins.
type LoginSelectors struct {
	Username []string
	Password []string
	Submit   []string
}

// LoginObservation is the page state captured after a login submission.
type LoginObservation struct {
	URL                  string
	PasswordFieldPresent bool
	PageText             string
}

// FetchRequest describes one HTTP request against the portal.
type FetchRequest struct {
	Path  string
	Query map[string]string
}

type SiteAdapter interface {
	Name() string
	LoginURL() string
	EntryURL() string
	LoginSelectors() LoginSelectors
	// VerifyLogin returns nil when obs shows a successful login.
	VerifyLogin(obs LoginObservation) error
	// SearchControl is a selector present on every authenticated page the
	// browser strategy works from.
	SearchControl() string
	NavigateToItem(page browser.Page, item models.WorkItem) error
	ParseListingPage(html string) ([]models.WorkItem, error)
	// ParseDetailPage returns nil, nil when the page has no data for item.
	ParseDetailPage(html string, item models.WorkItem) (*models.Result, error)
	// FetchRequests returns an unauthenticated and an authenticated request
	// for item. ok is false when the portal cannot be scraped over HTTP.
	FetchRequests(item models.WorkItem) (public, authed FetchRequest, ok bool)
	HasDataMarkers(body []byte) bool
	DiscoverySearch(page browser.Page) error
}

type Options struct {
	BaseURL        string
	LoginURL       string
	EntryURL       string
	DiscoveryQuery string
	SettleTimeout  time.Duration
	// ErrorPhrases overrides DefaultErrorPhrases for login verification.
	ErrorPhrases []string
}

func (o Options) withDefaults(loginPath, entryPath string) Options {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.LoginURL == "" {
		o.LoginURL = o.BaseURL + loginPath
	}
	if o.EntryURL == "" {
		o.EntryURL = o.BaseURL + entryPath
	}
	if o.DiscoveryQuery == "" {
		o.DiscoveryQuery = "oak"
	}
	if o.SettleTimeout == 0 {
		o.SettleTimeout = 10 * time.Second
	}
	if len(o.ErrorPhrases) == 0 {
		o.ErrorPhrases = DefaultErrorPhrases
	}
	return o
}

type Factory func(Options) SiteAdapter

var registry = map[string]Factory{
	"dealernet": func(o Options) SiteAdapter { return NewDealerNet(o) },
	"tradehub":  func(o Options) SiteAdapter { return NewTradeHub(o) },
}

// New builds the adapter registered under name.
func New(name string, opts Options) (SiteAdapter, error) {
	factory, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown site adapter %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("site adapter %q: base url is required", name)
	}
	return factory(opts), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
