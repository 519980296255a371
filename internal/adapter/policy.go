package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

var DefaultErrorPhrases = []string{
	"invalid",
	"incorrect",
	"try again",
	"wrong password",
	"authentication failed",
}

var errPasswordFieldPresent = errors.New("password field still present after submit")

// MatchErrorPhrase returns the first phrase found in text, case-insensitively.
func MatchErrorPhrase(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// PasswordFieldPolicy fails a login when the password field is still on the
// page, or when the page shows an error phrase.
func PasswordFieldPolicy(phrases []string) func(LoginObservation) error {
	return func(obs LoginObservation) error {
		if obs.PasswordFieldPresent {
			return errPasswordFieldPresent
		}
		if phrase, ok := MatchErrorPhrase(obs.PageText, phrases); ok {
			return fmt.Errorf("login page reports %q", phrase)
		}
		return nil
	}
}

// ErrorTextOnLoginURLPolicy fails a login only when the page shows an error
// phrase and the browser is still on a login-looking URL. Portals that keep a
// hidden password input on every page need this one.
func ErrorTextOnLoginURLPolicy(phrases []string) func(LoginObservation) error {
	return func(obs LoginObservation) error {
		phrase, ok := MatchErrorPhrase(obs.PageText, phrases)
		if ok && models.IsLoginURL(obs.URL) {
			return fmt.Errorf("login page reports %q at %s", phrase, obs.URL)
		}
		return nil
	}
}
