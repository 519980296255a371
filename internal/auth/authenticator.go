// Package auth obtains portal sessions, either by driving the login form in
// a browser or by importing cookies exported from a real browser.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

var (
	errNoEmailField    = errors.New("no email field found")
	errNoPasswordField = errors.New("no password field found")
	errNoCookies       = errors.New("no cookies obtained after login")
)

// Authenticator logs into one portal through the browser.
type Authenticator struct {
	site   adapter.SiteAdapter
	creds  models.Credentials
	shots  *browser.Screenshotter
	logger *slog.Logger

	// SettleTimeout bounds each post-submit navigation wait.
	SettleTimeout time.Duration
}

func NewAuthenticator(site adapter.SiteAdapter, creds models.Credentials, shots *browser.Screenshotter, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		site:          site,
		creds:         creds,
		shots:         shots,
		logger:        logger.With("component", "auth", "portal", site.Name()),
		SettleTimeout: 10 * time.Second,
	}
}

// Authenticate runs the full login sequence on page and returns the
// resulting session. Incomplete credentials fail with *models.ConfigError
// before the page is touched; every other failure is a *models.AuthError.
func (a *Authenticator) Authenticate(ctx context.Context, page browser.Page) (*models.Session, error) {
	if !a.creds.Complete() {
		return nil, &models.ConfigError{
			Portal: a.site.Name(),
			Field:  "credentials",
			Reason: "username and password are required",
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, a.fail(nil, "navigate", err, "")
	}

	loginURL := a.site.LoginURL()
	a.logger.Info("navigating to login page", "url", loginURL)
	if err := page.Goto(loginURL); err != nil {
		return nil, a.fail(page, "navigate", err, "login-navigate")
	}

	dismissConsent(page, a.logger)

	selectors := a.site.LoginSelectors()
	frame := selectLoginFrame(page, selectors.Username, a.logger)

	userSel, ok := firstMatch(frame, selectors.Username)
	if !ok {
		return nil, a.fail(page, "locate", errNoEmailField, "login-no-email-field")
	}
	passSel, ok := firstMatch(frame, selectors.Password)
	if !ok {
		return nil, a.fail(page, "locate", errNoPasswordField, "login-no-password-field")
	}

	if err := frame.Fill(userSel, a.creds.Username); err != nil {
		return nil, a.fail(page, "fill", fmt.Errorf("username field %s: %w", userSel, err), "login-fill")
	}
	if err := frame.Fill(passSel, a.creds.Password); err != nil {
		return nil, a.fail(page, "fill", fmt.Errorf("password field %s: %w", passSel, err), "login-fill")
	}

	strategy, err := submit(frame, selectors.Submit, passSel)
	if err != nil {
		return nil, a.fail(page, "submit", err, "login-submit")
	}
	if err := page.WaitForNavigation(a.SettleTimeout); err != nil {
		a.logger.Debug("no navigation detected after submit", "strategy", strategy, "error", err)
	}
	a.logger.Info("login submitted", "strategy", strategy)

	obs := observe(page, selectors.Password)
	if err := a.site.VerifyLogin(obs); err != nil {
		return nil, a.fail(page, "verify", err, "login-verify-failed")
	}

	cookies, err := page.Cookies()
	if err != nil {
		return nil, a.fail(page, "cookies", err, "")
	}
	if len(cookies) == 0 {
		return nil, a.fail(page, "cookies", errNoCookies, "login-no-cookies")
	}

	a.logger.Info("login succeeded", "cookies", len(cookies), "url", obs.URL)
	return models.NewSession(cookies, models.SessionSourceLogin, loginURL), nil
}

func (a *Authenticator) fail(page browser.Page, stage string, err error, label string) error {
	authErr := &models.AuthError{
		Portal: a.site.Name(),
		Stage:  stage,
		Err:    err,
	}
	if page != nil && label != "" {
		authErr.Screenshot = a.shots.Capture(page, a.site.Name()+"-"+label)
	}
	a.logger.Error("login failed", "stage", stage, "error", err, "screenshot", authErr.Screenshot)
	return authErr
}

// observe captures the post-submit state consumed by the adapter's
// verification policy.
func observe(page browser.Page, passwordSelectors []string) adapter.LoginObservation {
	obs := adapter.LoginObservation{URL: page.URL()}

	for _, frame := range page.Frames() {
		if _, ok := firstMatch(frame, passwordSelectors); ok {
			obs.PasswordFieldPresent = true
			break
		}
	}

	if text, err := page.Text(); err == nil {
		obs.PageText = text
	}
	return obs
}
