package browser

import (
	"fmt"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/playwright-community/playwright-go"
)

// Frame is a document the core can query and interact with: the main page or
// an embedded iframe.
type Frame interface {
	URL() string
	IsMain() bool
	Count(selector string) (int, error)
	// Fill clears the first element matching selector and types value into it.
	Fill(selector, value string) error
	Click(selector string) error
	Press(selector, key string) error
	Evaluate(script string, args ...any) (any, error)
}

// Page is the browser capability set consumed by authentication, extraction
// and discovery. Its Frame methods act on the main frame.
type Page interface {
	Frame
	Goto(url string) error
	// WaitForNavigation waits for the page to settle after an interaction.
	WaitForNavigation(timeout time.Duration) error
	Frames() []Frame
	Title() (string, error)
	Content() (string, error)
	// Text returns the visible text of the main document body.
	Text() (string, error)
	Cookies() ([]models.Cookie, error)
	SetCookies(cookies []models.Cookie) error
	Screenshot(path string) error
	Close() error
}

type playwrightFrame struct {
	frame playwright.Frame
}

func (f *playwrightFrame) URL() string {
	return f.frame.URL()
}

func (f *playwrightFrame) IsMain() bool {
	return f.frame.ParentFrame() == nil
}

func (f *playwrightFrame) Count(selector string) (int, error) {
	return f.frame.Locator(selector).Count()
}

func (f *playwrightFrame) Fill(selector, value string) error {
	return f.frame.Locator(selector).First().Fill(value)
}

func (f *playwrightFrame) Click(selector string) error {
	return f.frame.Locator(selector).First().Click()
}

func (f *playwrightFrame) Press(selector, key string) error {
	return f.frame.Locator(selector).First().Press(key)
}

func (f *playwrightFrame) Evaluate(script string, args ...any) (any, error) {
	return f.frame.Evaluate(script, args...)
}

type playwrightPage struct {
	playwrightFrame
	page       playwright.Page
	navTimeout time.Duration
}

func newPlaywrightPage(page playwright.Page, navTimeout time.Duration) *playwrightPage {
	return &playwrightPage{
		playwrightFrame: playwrightFrame{frame: page.MainFrame()},
		page:            page,
		navTimeout:      navTimeout,
	}
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) IsMain() bool {
	return true
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.navTimeout.Milliseconds())),
	})
	return err
}

func (p *playwrightPage) WaitForNavigation(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *playwrightPage) Frames() []Frame {
	frames := p.page.Frames()
	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		out = append(out, &playwrightFrame{frame: f})
	}
	return out
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Text() (string, error) {
	v, err := p.page.Evaluate(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (p *playwrightPage) Cookies() ([]models.Cookie, error) {
	cookies, err := p.page.Context().Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (p *playwrightPage) SetCookies(cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	url := p.page.URL()
	opts := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		// playwright needs either a url or a domain+path pair
		if c.Domain != "" {
			path := c.Path
			if path == "" {
				path = "/"
			}
			oc.Domain = playwright.String(c.Domain)
			oc.Path = playwright.String(path)
		} else {
			oc.URL = playwright.String(url)
		}
		if !c.Expires.IsZero() {
			oc.Expires = playwright.Float(float64(c.Expires.Unix()))
		}
		opts = append(opts, oc)
	}

	if err := p.page.Context().AddCookies(opts); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
