package discovery

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/browser/browsertest"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><head><title>Products</title><script>var X = "NOT A CARD";</script></head><body>
<header><a href="/account">MY ACCOUNT</a>
	<form id="search" action="/app/search"><input id="quick-search" name="q" placeholder="Search"><button type="submit">Go</button></form>
</header>
<main>
	<div class="grid">
		<div class="tile"><div class="tile-body"><span class="name">HIGHLAND OAK PLANK</span><span>$3.49</span></div></div>
		<div class="tile"><div class="tile-body"><span class="name">COASTAL LUXURY VINYL</span></div></div>
		<div class="tile"><div class="tile-body"><span class="name">HIGHLAND OAK PLANK</span></div></div>
	</div>
</main>
</body></html>`

func newPage(site adapter.SiteAdapter) *browsertest.Page {
	page := browsertest.NewPage("about:blank")
	page.PageTitle = "Products"
	page.HTML = resultsPage
	page.Set(site.SearchControl(), 1)
	return page
}

func TestDiscover(t *testing.T) {
	site := adapter.NewTradeHub(adapter.Options{BaseURL: "https://trade.example.com", DiscoveryQuery: "hickory"})
	page := newPage(site)
	d := New(site, page, browser.NewScreenshotter(t.TempDir(), slog.Default()), nil, slog.Default())

	dump, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://trade.example.com/app/products"}, page.Navigations)
	assert.Equal(t, "hickory", page.Filled[site.SearchControl()])
	assert.Equal(t, "Products", dump.Title)
	assert.Equal(t, "tradehub", dump.Portal)
	assert.Len(t, page.Shots, 1)
	assert.Equal(t, page.Shots[0], dump.Screenshot)

	wantForms := []Form{{ID: "search", Action: "/app/search", Method: "GET", Inputs: 1}}
	if diff := cmp.Diff(wantForms, dump.Forms); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}

	wantInputs := []Input{
		{Tag: "input", Name: "q", ID: "quick-search", Placeholder: "Search", Form: "search"},
		{Tag: "button", Type: "submit", Form: "search"},
	}
	if diff := cmp.Diff(wantInputs, dump.Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	wantCards := []Card{
		{Text: "HIGHLAND OAK PLANK", Ancestors: []Ancestor{{Tag: "div", Classes: "tile-body"}, {Tag: "div", Classes: "tile"}, {Tag: "div", Classes: "grid"}}},
		{Text: "COASTAL LUXURY VINYL", Ancestors: []Ancestor{{Tag: "div", Classes: "tile-body"}, {Tag: "div", Classes: "tile"}, {Tag: "div", Classes: "grid"}}},
	}
	if diff := cmp.Diff(wantCards, dump.Cards, cmpopts.IgnoreFields(Ancestor{}, "HTML")); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, dump.Cards[0].Ancestors[0].HTML, `<div class="tile-body">`)
}

func TestDiscoverLoadsImportedCookies(t *testing.T) {
	site := adapter.NewDealerNet(adapter.Options{BaseURL: "https://dealers.example.com"})
	page := newPage(site)
	d := New(site, page, nil, nil, slog.Default())
	session := models.NewSession([]models.Cookie{{Name: "sid", Value: "x"}}, models.SessionSourceImport, "")

	dump, err := d.Discover(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, session.Cookies, page.Jar)
	assert.Equal(t, []string{
		"https://dealers.example.com/catalog",
		"https://dealers.example.com/catalog/search?q=oak",
	}, page.Navigations)
	assert.Empty(t, dump.Screenshot)
}

func TestDiscoverRedirectedToLogin(t *testing.T) {
	site := adapter.NewDealerNet(adapter.Options{BaseURL: "https://dealers.example.com"})
	page := newPage(site)
	page.OnGoto = func(string) error {
		page.FrameURL = site.LoginURL()
		return nil
	}
	d := New(site, page, nil, nil, slog.Default())

	_, err := d.Discover(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestDiscoverKeepsGoingWhenSearchFails(t *testing.T) {
	site := adapter.NewTradeHub(adapter.Options{BaseURL: "https://trade.example.com"})
	page := newPage(site)
	page.Set(site.SearchControl(), 0)
	d := New(site, page, nil, nil, slog.Default())

	dump, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, dump.Notes, 1)
	assert.Contains(t, dump.Notes[0], "search step failed")
	assert.Len(t, dump.Cards, 2)
}

func TestDiscoverRetriesEntryNavigation(t *testing.T) {
	site := adapter.NewTradeHub(adapter.Options{BaseURL: "https://trade.example.com"})
	page := newPage(site)
	attempts := 0
	page.OnGoto = func(string) error {
		attempts++
		if attempts == 1 {
			return errors.New("net::ERR_CONNECTION_RESET")
		}
		return nil
	}
	d := New(site, page, nil, nil, slog.Default())

	_, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{site.EntryURL(), site.EntryURL()}, page.Navigations[:2])
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc…"},
		{"ab€cd", 3, "ab…"},
		{"ab€cd", 4, "ab…"},
		{"ab€cd", 5, "ab€…"},
		{"€€", 1, "…"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got), "truncate(%q, %d) split a rune", tt.in, tt.n)
	}
}
