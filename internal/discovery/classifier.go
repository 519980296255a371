package discovery

import (
	"strings"
	"unicode"
)

// DefaultDenyList holds navigation and storefront chrome that looks like a
// product name to the heuristic.
var DefaultDenyList = []string{
	"MY ACCOUNT",
	"SIGN OUT",
	"LOG OUT",
	"ADD TO CART",
	"ADD TO ORDER",
	"VIEW DETAILS",
	"QUICK VIEW",
	"SHOP ALL",
	"NEW ARRIVALS",
	"FREE SHIPPING",
	"CONTACT US",
	"CUSTOMER SERVICE",
	"ORDER HISTORY",
	"SEARCH RESULTS",
	"PRIVACY POLICY",
	"TERMS OF USE",
	"BACK TO TOP",
	"LOAD MORE",
}

// Classifier decides whether a text node looks like a product card title:
// short, all uppercase, several words and not on the deny list.
type Classifier struct {
	MinWords int
	MaxWords int
	MaxLen   int
	deny     map[string]bool
}

func NewClassifier(deny []string) *Classifier {
	set := make(map[string]bool, len(deny))
	for _, phrase := range deny {
		set[strings.ToUpper(normalize(phrase))] = true
	}
	return &Classifier{
		MinWords: 2,
		MaxWords: 8,
		MaxLen:   60,
		deny:     set,
	}
}

var defaultClassifier = NewClassifier(DefaultDenyList)

// IsCandidateCardText applies the default classifier.
func IsCandidateCardText(text string) bool {
	return defaultClassifier.IsCandidate(text)
}

func (c *Classifier) IsCandidate(text string) bool {
	text = normalize(text)
	if text == "" || len(text) > c.MaxLen {
		return false
	}

	words := strings.Fields(text)
	if len(words) < c.MinWords || len(words) > c.MaxWords {
		return false
	}
	if c.deny[text] {
		return false
	}
	// prices and codes are not names
	if strings.ContainsAny(text, "$@") {
		return false
	}

	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 4
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
