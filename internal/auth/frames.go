package auth

import (
	"log/slog"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
)

// genericUserInputs catches embedded login widgets whose markup the adapter
// does not know about.
var genericUserInputs = []string{
	`input[type="email"]`,
	`input[name*="email" i]`,
	`input[name*="user" i]`,
	`input[id*="email" i]`,
	`input[id*="user" i]`,
}

var consentSelectors = []string{
	`#onetrust-accept-btn-handler`,
	`button#accept-cookies`,
	`button[data-testid="cookie-accept"]`,
	`.cookie-banner button.accept`,
}

// selectLoginFrame returns the first embedded frame that holds a username
// input, falling back to the main document.
func selectLoginFrame(page browser.Page, userSelectors []string, logger *slog.Logger) browser.Frame {
	candidates := append(append([]string{}, userSelectors...), genericUserInputs...)

	for _, frame := range page.Frames() {
		if frame.IsMain() {
			continue
		}
		if sel, ok := firstMatch(frame, candidates); ok {
			logger.Info("using embedded login frame", "frame_url", frame.URL(), "selector", sel)
			return frame
		}
	}

	logger.Info("using main document for login", "url", page.URL())
	return page
}

// firstMatch returns the first selector with at least one match in frame.
func firstMatch(frame browser.Frame, selectors []string) (string, bool) {
	for _, sel := range selectors {
		n, err := frame.Count(sel)
		if err == nil && n > 0 {
			return sel, true
		}
	}
	return "", false
}

func dismissConsent(page browser.Page, logger *slog.Logger) {
	sel, ok := firstMatch(page, consentSelectors)
	if !ok {
		return
	}
	if err := page.Click(sel); err != nil {
		logger.Debug("could not dismiss cookie consent", "selector", sel, "error", err)
		return
	}
	logger.Debug("dismissed cookie consent", "selector", sel)
}
