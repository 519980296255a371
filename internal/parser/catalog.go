package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CatalogParser turns the free-form price and coverage strings dealer
// portals print into numbers and normalized units.
type CatalogParser struct {
	pricePatterns    []*regexp.Regexp
	basisPatterns    map[string]*regexp.Regexp
	coveragePatterns []*regexp.Regexp
}

func NewCatalogParser() *CatalogParser {
	return &CatalogParser{
		pricePatterns: []*regexp.Regexp{
			regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`),
			regexp.MustCompile(`(?i)(?:price|cost|net)\s*:?\s*(\d[\d,]*(?:\.\d+)?)`),
			regexp.MustCompile(`^\s*(\d[\d,]*(?:\.\d+)?)\s*(?:usd)?\s*(?:/|per|$)`),
		},
		basisPatterns: map[string]*regexp.Regexp{
			"SF":  regexp.MustCompile(`(?i)(?:/\s*|per\s+)?\b(?:sf|sq\.?\s*ft\.?|square\s+f(?:oo|ee)t)\b`),
			"SY":  regexp.MustCompile(`(?i)(?:/\s*|per\s+)?\b(?:sy|sq\.?\s*yd\.?|square\s+yards?)\b`),
			"LF":  regexp.MustCompile(`(?i)(?:/\s*|per\s+)?\b(?:lf|lin\.?\s*ft\.?|linear\s+f(?:oo|ee)t)\b`),
			"CTN": regexp.MustCompile(`(?i)(?:/\s*|per\s+)?\b(?:ctn|carton|box)\b`),
			"EA":  regexp.MustCompile(`(?i)(?:/\s*|per\s+)\b(?:ea|each|pc|piece)\b`),
		},
		coveragePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(sq\.?\s*ft\.?|sf|square\s+feet)`),
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(sq\.?\s*yd\.?|sy|square\s+yards?)`),
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(lin\.?\s*ft\.?|lf|linear\s+feet)`),
		},
	}
}

// ParsePrice extracts the first monetary amount in text.
func (p *CatalogParser) ParsePrice(text string) (*float64, error) {
	text = strings.TrimSpace(text)
	for _, pattern := range p.pricePatterns {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(matches[1], ",", ""), 64)
		if err != nil || value <= 0 {
			continue
		}
		return &value, nil
	}
	return nil, fmt.Errorf("price not found in %q", text)
}

// ParseBasis returns the normalized unit a price is quoted in, or "".
func (p *CatalogParser) ParseBasis(text string) string {
	for _, basis := range []string{"SF", "SY", "LF", "CTN", "EA"} {
		if p.basisPatterns[basis].MatchString(text) {
			return basis
		}
	}
	return ""
}

// ParseCoverage extracts an area or length per selling unit, e.g.
// "23.5 sq. ft. per carton".
func (p *CatalogParser) ParseCoverage(text string) (*float64, string, error) {
	units := []string{"SF", "SY", "LF"}
	for i, pattern := range p.coveragePatterns {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) < 3 {
			continue
		}
		value, err := strconv.ParseFloat(matches[1], 64)
		if err != nil || value <= 0 {
			continue
		}
		return &value, units[i], nil
	}
	return nil, "", fmt.Errorf("coverage not found in %q", text)
}

// Document parses an HTML page.
func Document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Text returns the whitespace-collapsed text of a selection.
func Text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
