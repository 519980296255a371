// Package discovery dumps the structure of a portal page so that a new
// site adapter can be written by hand.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/parser"
)

const (
	maxAncestors   = 3
	maxSnippetSize = 600
)

type Dump struct {
	Portal     string    `json:"portal"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Forms      []Form    `json:"forms"`
	Inputs     []Input   `json:"inputs"`
	Cards      []Card    `json:"cards"`
	Screenshot string    `json:"screenshot,omitempty"`
	Notes      []string  `json:"notes,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

type Form struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
	Inputs int    `json:"inputs"`
}

type Input struct {
	Tag         string `json:"tag"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Form        string `json:"form,omitempty"`
}

type Card struct {
	Text      string     `json:"text"`
	Ancestors []Ancestor `json:"ancestors"`
}

type Ancestor struct {
	Tag     string `json:"tag"`
	Classes string `json:"classes,omitempty"`
	HTML    string `json:"html"`
}

type Discoverer struct {
	site       adapter.SiteAdapter
	page       browser.Page
	shots      *browser.Screenshotter
	classifier *Classifier
	logger     *slog.Logger

	MaxCards int
}

func New(site adapter.SiteAdapter, page browser.Page, shots *browser.Screenshotter, classifier *Classifier, logger *slog.Logger) *Discoverer {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Discoverer{
		site:       site,
		page:       page,
		shots:      shots,
		classifier: classifier,
		logger:     logger.With("component", "discovery", "portal", site.Name()),
		MaxCards:   50,
	}
}

// Discover opens the entry page, runs the adapter's representative search
// and captures what the page looks like. Nothing is persisted.
func (d *Discoverer) Discover(ctx context.Context, session *models.Session) (*Dump, error) {
	if session != nil && session.Source == models.SessionSourceImport {
		if err := d.page.SetCookies(session.Cookies); err != nil {
			return nil, fmt.Errorf("failed to load imported cookies: %w", err)
		}
	}

	if err := browser.NavigateWithRetry(d.page, d.site.EntryURL(), 2, d.logger); err != nil {
		return nil, fmt.Errorf("failed to open entry page: %w", err)
	}
	if current := d.page.URL(); models.IsLoginURL(current) {
		return nil, &models.SessionExpiredError{Location: current}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dump := &Dump{Portal: d.site.Name(), CapturedAt: time.Now()}

	if err := d.site.DiscoverySearch(d.page); err != nil {
		d.logger.Warn("representative search failed", "error", err)
		dump.Notes = append(dump.Notes, "search step failed: "+err.Error())
	}

	dump.URL = d.page.URL()
	if title, err := d.page.Title(); err == nil {
		dump.Title = title
	}

	html, err := d.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	if err := d.inspect(html, dump); err != nil {
		return nil, err
	}

	dump.Screenshot = d.shots.Capture(d.page, d.site.Name()+"-discovery")

	d.logger.Info("discovery captured",
		"url", dump.URL,
		"forms", len(dump.Forms),
		"inputs", len(dump.Inputs),
		"cards", len(dump.Cards))
	return dump, nil
}

func (d *Discoverer) inspect(html string, dump *Dump) error {
	doc, err := parser.Document(html)
	if err != nil {
		return err
	}

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		dump.Forms = append(dump.Forms, Form{
			ID:     s.AttrOr("id", ""),
			Action: s.AttrOr("action", ""),
			Method: strings.ToUpper(s.AttrOr("method", "get")),
			Inputs: s.Find("input, select, textarea").Length(),
		})
	})

	doc.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		input := Input{
			Tag:         goquery.NodeName(s),
			Type:        s.AttrOr("type", ""),
			Name:        s.AttrOr("name", ""),
			ID:          s.AttrOr("id", ""),
			Placeholder: s.AttrOr("placeholder", ""),
		}
		if form := s.Closest("form"); form.Length() > 0 {
			input.Form = form.AttrOr("id", form.AttrOr("action", "form"))
		}
		dump.Inputs = append(dump.Inputs, input)
	})

	seen := map[string]bool{}
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(dump.Cards) >= d.MaxCards {
			return false
		}
		switch goquery.NodeName(s) {
		case "script", "style", "noscript", "option":
			return true
		}

		text := ownText(s)
		if seen[text] || !d.classifier.IsCandidate(text) {
			return true
		}
		seen[text] = true
		dump.Cards = append(dump.Cards, Card{Text: text, Ancestors: ancestors(s)})
		return true
	})

	return nil
}

// ownText joins the element's direct text nodes, ignoring its children.
func ownText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			parts = append(parts, c.Text())
		}
	})
	return normalize(strings.Join(parts, " "))
}

func ancestors(s *goquery.Selection) []Ancestor {
	var out []Ancestor
	s.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if goquery.NodeName(p) == "body" || len(out) >= maxAncestors {
			return false
		}
		html, _ := goquery.OuterHtml(p)
		out = append(out, Ancestor{
			Tag:     goquery.NodeName(p),
			Classes: p.AttrOr("class", ""),
			HTML:    truncate(html, maxSnippetSize),
		})
		return true
	})
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
