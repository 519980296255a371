package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/browser/browsertest"
	"github.com/maltedev/dealer-portal-scraper/internal/config"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPortals = `{
	dealernet: {
		base_url: "https://dealers.example.com",
		engine: { item_delay: "1ms" },
	},
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	portals, err := config.ParsePortals([]byte(testPortals))
	require.NoError(t, err)
	return &config.Config{
		Fetch:       config.FetchConfig{Timeout: 5 * time.Second, MaxRedirects: 5},
		Storage:     config.StorageConfig{UploadsDir: t.TempDir()},
		PortalsFile: "portals.json5",
		Portals:     portals,
	}
}

type fakeBrowser struct {
	page    *browsertest.Page
	pageErr error
	closed  bool
}

func (b *fakeBrowser) NewPage() (browser.Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type launchCounter struct {
	browser  *fakeBrowser
	err      error
	launches int
}

func (l *launchCounter) launch() (PageOpener, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// dealerNetLogin is a login page that accepts any credentials.
func dealerNetLogin() *browsertest.Page {
	page := browsertest.NewPage("about:blank")
	page.Set(`input#Email`, 1).Set(`input#Password`, 1).Set(`button[type="submit"]`, 1)
	page.OnClick = func(string) {
		page.FrameURL = "https://dealers.example.com/catalog"
		page.Set(`input#Password`, 0)
		page.Jar = []models.Cookie{{Name: ".AspNet.Session", Value: "abc"}}
	}
	return page
}

func setCredentials(t *testing.T) {
	t.Setenv("DEALERNET_USERNAME", "buyer@example.com")
	t.Setenv("DEALERNET_PASSWORD", "hunter2")
}

func newTestRunner(t *testing.T, l *launchCounter) *Runner {
	return NewRunner(testConfig(t), l.launch, nil, slog.Default())
}

type lineSink struct{ lines []string }

func (s *lineSink) AppendLine(_ context.Context, text string, _ *models.Checkpoint) error {
	s.lines = append(s.lines, text)
	return nil
}

func (s *lineSink) RecordError(_ context.Context, text string) error {
	s.lines = append(s.lines, "error: "+text)
	return nil
}

func TestExtractConfigErrorsBeforeLaunch(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
		req   Request
		field string
	}{
		{
			name:  "missing credentials",
			setup: func(t *testing.T) { t.Setenv("DEALERNET_PASSWORD", "") },
			req:   Request{Portal: "dealernet"},
			field: "credentials",
		},
		{
			name:  "cookies without a source",
			setup: setCredentials,
			req:   Request{Portal: "dealernet", UseCookies: true},
			field: "cookie source",
		},
		{
			name:  "unknown portal",
			setup: setCredentials,
			req:   Request{Portal: "acme"},
			field: "portal",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			l := &launchCounter{browser: &fakeBrowser{page: dealerNetLogin()}}
			r := newTestRunner(t, l)

			tt.req.Store = &stubCatalog{}
			_, err := r.Extract(context.Background(), tt.req)

			var cfgErr *models.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Zero(t, l.launches)
		})
	}
}

func TestExtractLoginFormMissingClosesBrowser(t *testing.T) {
	setCredentials(t)
	b := &fakeBrowser{page: browsertest.NewPage("about:blank")}
	r := newTestRunner(t, &launchCounter{browser: b})
	sink := &lineSink{}

	summary, err := r.Extract(context.Background(), Request{
		Portal: "dealernet",
		Items:  []models.WorkItem{{Code: "I-1"}, {Code: "I-2"}},
		Store:  &stubCatalog{},
		Sink:   sink,
	})

	var authErr *models.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "locate", authErr.Stage)
	assert.True(t, models.IsFatal(err))
	assert.Equal(t, models.Summary{}, summary)
	assert.True(t, b.closed)
	assert.True(t, b.page.Closed)
	require.NotEmpty(t, sink.lines)
	assert.Contains(t, sink.lines[len(sink.lines)-1], "aborting before the first item")
}

func TestExtractFetchStrategyEndToEnd(t *testing.T) {
	setCredentials(t)
	b := &fakeBrowser{page: dealerNetLogin()}
	r := newTestRunner(t, &launchCounter{browser: b})

	transport := httpmock.NewMockTransport()
	for _, code := range []string{"I-1", "I-2"} {
		transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/"+code,
			httpmock.NewStringResponder(200, `<div class="item-detail"><h1 class="item-name">Item `+code+`</h1>
				<span class="dealer-price" data-dealer-price="2.50">$2.50 / SF</span></div>`))
		transport.RegisterResponder("GET", "https://dealers.example.com/public/item/"+code,
			httpmock.NewStringResponder(200, `<p>Log in to see dealer pricing</p>`))
	}
	r.Transport = transport

	catalog, err := storage.NewFileStore(filepath.Join(t.TempDir(), "catalog.json"))
	require.NoError(t, err)

	summary, err := r.Extract(context.Background(), Request{
		Portal: "dealernet",
		Items:  []models.WorkItem{{Code: "I-1"}, {Code: "I-2"}},
		Store:  catalog,
	})
	require.NoError(t, err)

	assert.Equal(t, engine.StrategyFetch, summary.Strategy)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Updated)
	assert.Zero(t, summary.Errors)
	assert.True(t, b.closed)

	got, ok := catalog.Get("I-2")
	require.True(t, ok)
	assert.Equal(t, 2.5, *got.Price)
}

func TestExtractLaunchFailure(t *testing.T) {
	setCredentials(t)
	r := newTestRunner(t, &launchCounter{err: errors.New("chromium not installed")})

	_, err := r.Extract(context.Background(), Request{Portal: "dealernet", Store: &stubCatalog{}})
	assert.ErrorContains(t, err, "chromium not installed")
}

func TestExtractPageFailureClosesBrowser(t *testing.T) {
	setCredentials(t)
	b := &fakeBrowser{pageErr: errors.New("context closed")}
	r := newTestRunner(t, &launchCounter{browser: b})

	_, err := r.Extract(context.Background(), Request{Portal: "dealernet", Store: &stubCatalog{}})
	assert.ErrorContains(t, err, "context closed")
	assert.True(t, b.closed)
}

func TestDiscoverWithImportedCookies(t *testing.T) {
	t.Setenv("DEALERNET_COOKIES", ".AspNet.Session=abc; theme=dark")
	page := browsertest.NewPage("about:blank")
	page.PageTitle = "Catalog"
	page.HTML = `<html><body><form id="search" action="/catalog"><input name="q" type="search"></form>
		<div class="card"><span>PORCELAIN FLOOR TILE</span></div></body></html>`
	b := &fakeBrowser{page: page}
	r := newTestRunner(t, &launchCounter{browser: b})

	dump, err := r.Discover(context.Background(), "dealernet", true)
	require.NoError(t, err)

	assert.Equal(t, "dealernet", dump.Portal)
	assert.Equal(t, "https://dealers.example.com/catalog", page.Navigations[0])
	assert.Len(t, page.Jar, 2)
	require.Len(t, dump.Forms, 1)
	require.NotEmpty(t, dump.Cards)
	assert.Equal(t, "PORCELAIN FLOOR TILE", dump.Cards[0].Text)
	assert.True(t, b.closed)
}

func TestListingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listing.html")
	require.NoError(t, os.WriteFile(path, []byte(`<table class="catalog-results">
		<tr data-item-code="TILE-1"><td><a href="/catalog/item/TILE-1">Tile</a></td></tr>
		<tr data-item-code="TILE-2"><td><a href="/catalog/item/TILE-2">Tile</a></td></tr>
	</table>`), 0o644))
	r := newTestRunner(t, &launchCounter{})

	items, err := r.Listing(context.Background(), "dealernet", path, false)
	require.NoError(t, err)

	var codes []string
	for _, item := range items {
		codes = append(codes, item.Code)
	}
	assert.Equal(t, []string{"TILE-1", "TILE-2"}, codes)
}

func TestListingOverHTTP(t *testing.T) {
	setCredentials(t)
	r := newTestRunner(t, &launchCounter{})
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog",
		httpmock.NewStringResponder(200, `<li data-item-code="TILE-9"><a href="/catalog/item/TILE-9">Tile</a></li>`))
	r.Transport = transport

	items, err := r.Listing(context.Background(), "dealernet", "/catalog", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "TILE-9", items[0].Code)
}

func TestListingValidatesBeforeFetching(t *testing.T) {
	t.Setenv("DEALERNET_PASSWORD", "")
	r := newTestRunner(t, &launchCounter{})
	transport := httpmock.NewMockTransport()
	r.Transport = transport

	_, err := r.Listing(context.Background(), "dealernet", "/catalog", false)

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "credentials", cfgErr.Field)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestListingRejectsUnknownSource(t *testing.T) {
	setCredentials(t)
	r := newTestRunner(t, &launchCounter{})
	transport := httpmock.NewMockTransport()
	r.Transport = transport

	_, err := r.Listing(context.Background(), "dealernet", "saved/missing.html", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a readable file")

	_, err = r.Listing(context.Background(), "dealernet", "https://elsewhere.example/catalog", false)
	assert.ErrorIs(t, err, fetch.ErrForeignHost)
	assert.Zero(t, transport.GetTotalCallCount())
}

// keyCollector is a slog handler that remembers every record whose
// attributes repeat a key.
type keyCollector struct {
	mu      *sync.Mutex
	attrs   []slog.Attr
	records *int
	repeats *[]string
}

func newKeyCollector() *keyCollector {
	return &keyCollector{mu: &sync.Mutex{}, records: new(int), repeats: &[]string{}}
}

func (h *keyCollector) Enabled(context.Context, slog.Level) bool { return true }

func (h *keyCollector) Handle(_ context.Context, rec slog.Record) error {
	seen := map[string]bool{}
	var repeated []string
	check := func(a slog.Attr) bool {
		if seen[a.Key] {
			repeated = append(repeated, a.Key)
		}
		seen[a.Key] = true
		return true
	}
	for _, a := range h.attrs {
		check(a)
	}
	rec.Attrs(check)

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records++
	for _, key := range repeated {
		*h.repeats = append(*h.repeats, rec.Message+": "+key)
	}
	return nil
}

func (h *keyCollector) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *keyCollector) WithGroup(string) slog.Handler { return h }

func TestRunnerLogsEachKeyOnce(t *testing.T) {
	setCredentials(t)
	t.Setenv("DEALERNET_COOKIES", ".AspNet.Session=abc")
	logs := newKeyCollector()

	b := &fakeBrowser{page: dealerNetLogin()}
	r := NewRunner(testConfig(t), (&launchCounter{browser: b}).launch, nil, slog.New(logs))
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/I-1",
		httpmock.NewStringResponder(200, `<div class="item-detail"><h1 class="item-name">Item I-1</h1>
			<span class="dealer-price" data-dealer-price="2.50">$2.50 / SF</span></div>`))
	transport.RegisterResponder("GET", "https://dealers.example.com/public/item/I-1",
		httpmock.NewStringResponder(200, `<p>Log in to see dealer pricing</p>`))
	r.Transport = transport

	_, err := r.Extract(context.Background(), Request{
		Portal: "dealernet",
		Items:  []models.WorkItem{{Code: "I-1"}},
		Store:  &stubCatalog{},
	})
	require.NoError(t, err)

	page := browsertest.NewPage("about:blank")
	page.HTML = `<html><body><div class="card"><span>TILE</span></div></body></html>`
	r = NewRunner(testConfig(t), (&launchCounter{browser: &fakeBrowser{page: page}}).launch, nil, slog.New(logs))
	_, err = r.Discover(context.Background(), "dealernet", true)
	require.NoError(t, err)

	assert.NotZero(t, *logs.records)
	assert.Empty(t, *logs.repeats)
}
