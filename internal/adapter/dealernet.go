package adapter

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/parser"
)

// DealerNet is a server-rendered portal. Authenticated item pages carry
// dealer pricing that the public pages omit, so it can run over plain HTTP.
type DealerNet struct {
	opts   Options
	parser *parser.CatalogParser
	verify func(LoginObservation) error
}

func NewDealerNet(opts Options) *DealerNet {
	opts = opts.withDefaults("/Account/Login", "/catalog")
	return &DealerNet{
		opts:   opts,
		parser: parser.NewCatalogParser(),
		verify: PasswordFieldPolicy(opts.ErrorPhrases),
	}
}

func (d *DealerNet) Name() string     { return "dealernet" }
func (d *DealerNet) LoginURL() string { return d.opts.LoginURL }
func (d *DealerNet) EntryURL() string { return d.opts.EntryURL }

func (d *DealerNet) LoginSelectors() LoginSelectors {
	return LoginSelectors{
		Username: []string{
			`input#Email`,
			`input[name="Email"]`,
			`input[type="email"]`,
			`input[name="username"]`,
		},
		Password: []string{
			`input#Password`,
			`input[name="Password"]`,
			`input[type="password"]`,
		},
		Submit: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
		},
	}
}

func (d *DealerNet) VerifyLogin(obs LoginObservation) error {
	return d.verify(obs)
}

func (d *DealerNet) SearchControl() string {
	return `input[name="q"]`
}

func (d *DealerNet) itemPath(item models.WorkItem) string {
	return "/catalog/item/" + url.PathEscape(item.Code)
}

func (d *DealerNet) NavigateToItem(page browser.Page, item models.WorkItem) error {
	target := item.URL
	if target == "" {
		target = d.opts.BaseURL + d.itemPath(item)
	}
	if err := page.Goto(target); err != nil {
		return fmt.Errorf("failed to open item page: %w", err)
	}
	return nil
}

func (d *DealerNet) FetchRequests(item models.WorkItem) (FetchRequest, FetchRequest, bool) {
	public := FetchRequest{Path: "/public/item/" + url.PathEscape(item.Code)}
	authed := FetchRequest{Path: d.itemPath(item)}
	if item.Category != "" {
		public.Query = map[string]string{"category": item.Category}
		authed.Query = map[string]string{"category": item.Category}
	}
	return public, authed, true
}

func (d *DealerNet) HasDataMarkers(body []byte) bool {
	return bytes.Contains(body, []byte("data-dealer-price")) ||
		bytes.Contains(body, []byte(`class="dealer-price"`))
}

func (d *DealerNet) ParseListingPage(html string) ([]models.WorkItem, error) {
	doc, err := parser.Document(html)
	if err != nil {
		return nil, err
	}

	var items []models.WorkItem
	seen := map[string]bool{}
	doc.Find("[data-item-code]").Each(func(_ int, s *goquery.Selection) {
		code := strings.TrimSpace(s.AttrOr("data-item-code", ""))
		if code == "" || seen[code] {
			return
		}
		seen[code] = true

		item := models.WorkItem{
			Code:     code,
			Category: strings.TrimSpace(s.AttrOr("data-category", "")),
		}
		if href, ok := s.Find("a[href]").First().Attr("href"); ok {
			item.URL = d.absolute(href)
		}
		items = append(items, item)
	})

	return items, nil
}

func (d *DealerNet) ParseDetailPage(html string, item models.WorkItem) (*models.Result, error) {
	doc, err := parser.Document(html)
	if err != nil {
		return nil, err
	}

	detail := doc.Find(".item-detail").First()
	if detail.Length() == 0 || doc.Find(".no-results").Length() > 0 {
		return nil, nil
	}

	result := &models.Result{
		ItemCode: item.Code,
		Name:     parser.Text(detail.Find(".item-name").First()),
		Fields:   map[string]string{},
	}

	priceEl := detail.Find(".dealer-price, [data-dealer-price]").First()
	priceText := parser.Text(priceEl)
	if raw, ok := priceEl.Attr("data-dealer-price"); ok && raw != "" {
		priceText = "$" + raw
	}
	if priceText != "" {
		if price, err := d.parser.ParsePrice(priceText); err == nil {
			result.Price = price
		} else {
			result.Fields["price_text"] = priceText
		}
	}

	basisText := parser.Text(detail.Find(".price-basis").First())
	if basisText == "" {
		basisText = parser.Text(priceEl)
	}
	result.PriceBasis = d.parser.ParseBasis(basisText)

	if coverageText := parser.Text(detail.Find(".coverage").First()); coverageText != "" {
		if coverage, unit, err := d.parser.ParseCoverage(coverageText); err == nil {
			result.Coverage = coverage
			result.CoverageUnit = unit
		}
	}

	detail.Find("dl.specs dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.ToLower(strings.TrimSuffix(parser.Text(dt), ":"))
		if key == "" {
			return
		}
		result.Fields[key] = parser.Text(dt.NextFiltered("dd"))
	})

	if len(result.Fields) == 0 {
		result.Fields = nil
	}
	return result, nil
}

func (d *DealerNet) DiscoverySearch(page browser.Page) error {
	target := d.opts.BaseURL + "/catalog/search?q=" + url.QueryEscape(d.opts.DiscoveryQuery)
	return page.Goto(target)
}

func (d *DealerNet) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(d.opts.BaseURL + "/")
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
