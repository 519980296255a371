package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/parser"
)

var errNoSearchControl = errors.New("search control not found")

// TradeHub is a single-page portal whose results only exist after a search
// in the browser. It keeps a hidden password input on every page, so login
// verification relies on error text plus the URL.
type TradeHub struct {
	opts   Options
	parser *parser.CatalogParser
	verify func(LoginObservation) error
}

func NewTradeHub(opts Options) *TradeHub {
	opts = opts.withDefaults("/signin", "/app/products")
	return &TradeHub{
		opts:   opts,
		parser: parser.NewCatalogParser(),
		verify: ErrorTextOnLoginURLPolicy(opts.ErrorPhrases),
	}
}

func (t *TradeHub) Name() string     { return "tradehub" }
func (t *TradeHub) LoginURL() string { return t.opts.LoginURL }
func (t *TradeHub) EntryURL() string { return t.opts.EntryURL }

func (t *TradeHub) LoginSelectors() LoginSelectors {
	return LoginSelectors{
		Username: []string{
			`input[name="login"]`,
			`input#username`,
			`input[type="email"]`,
			`input[autocomplete="username"]`,
		},
		Password: []string{
			`input[name="password"]`,
			`input[type="password"]`,
		},
		Submit: []string{
			`button.signin-button`,
			`button[type="submit"]`,
		},
	}
}

func (t *TradeHub) VerifyLogin(obs LoginObservation) error {
	return t.verify(obs)
}

func (t *TradeHub) SearchControl() string {
	return `input#quick-search`
}

func (t *TradeHub) search(page browser.Page, term string) error {
	control := t.SearchControl()
	if n, err := page.Count(control); err != nil || n == 0 {
		return errNoSearchControl
	}
	if err := page.Fill(control, term); err != nil {
		return fmt.Errorf("failed to type search term: %w", err)
	}
	if err := page.Press(control, "Enter"); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}
	// results render client side; a missed settle is not fatal
	_ = page.WaitForNavigation(t.opts.SettleTimeout)
	return nil
}

func (t *TradeHub) NavigateToItem(page browser.Page, item models.WorkItem) error {
	return t.search(page, item.Code)
}

func (t *TradeHub) FetchRequests(models.WorkItem) (FetchRequest, FetchRequest, bool) {
	return FetchRequest{}, FetchRequest{}, false
}

func (t *TradeHub) HasDataMarkers([]byte) bool {
	return false
}

func (t *TradeHub) ParseListingPage(html string) ([]models.WorkItem, error) {
	doc, err := parser.Document(html)
	if err != nil {
		return nil, err
	}

	var items []models.WorkItem
	doc.Find(".product-card").Each(func(_ int, card *goquery.Selection) {
		code := parser.Text(card.Find(".sku").First())
		if code == "" {
			return
		}
		items = append(items, models.WorkItem{
			Code:     code,
			Category: strings.TrimSpace(card.AttrOr("data-collection", "")),
		})
	})
	return items, nil
}

func (t *TradeHub) ParseDetailPage(html string, item models.WorkItem) (*models.Result, error) {
	doc, err := parser.Document(html)
	if err != nil {
		return nil, err
	}

	var card *goquery.Selection
	doc.Find(".product-card").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(parser.Text(s.Find(".sku").First()), item.Code) {
			card = s
			return false
		}
		return true
	})
	if card == nil {
		return nil, nil
	}

	result := &models.Result{
		ItemCode: item.Code,
		Name:     parser.Text(card.Find(".card-title").First()),
	}

	priceText := parser.Text(card.Find(".card-price").First())
	if priceText != "" {
		price, err := t.parser.ParsePrice(priceText)
		if err != nil {
			return nil, fmt.Errorf("unreadable price for %s: %w", item.Code, err)
		}
		result.Price = price
	}

	unitText := parser.Text(card.Find(".card-unit").First())
	result.PriceBasis = t.parser.ParseBasis(unitText + " " + priceText)

	if coverageText := parser.Text(card.Find(".card-coverage").First()); coverageText != "" {
		if coverage, unit, err := t.parser.ParseCoverage(coverageText); err == nil {
			result.Coverage = coverage
			result.CoverageUnit = unit
		}
	}

	return result, nil
}

func (t *TradeHub) DiscoverySearch(page browser.Page) error {
	return t.search(page, t.opts.DiscoveryQuery)
}
