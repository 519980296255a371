// Package fetch issues authenticated HTTP requests against a portal and
// recognizes when the portal has dropped the session.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

var errTooManyRedirects = errors.New("too many redirects")

// ErrForeignHost is returned for requests and redirects that leave the
// portal's host. Session cookies are never sent there.
var ErrForeignHost = errors.New("foreign host")

type Options struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

func DefaultOptions() Options {
	return Options{
		UserAgent:    browser.DefaultUserAgent,
		Timeout:      20 * time.Second,
		MaxRedirects: 5,
	}
}

// Client follows redirects itself so that a bounce to the login page is
// seen before anything else is requested.
type Client struct {
	http   *resty.Client
	opts   Options
	base   *url.URL
	logger *slog.Logger
}

type RequestOptions struct {
	Query   map[string]string
	Headers map[string]string
}

type Response struct {
	StatusCode int
	// URL is the final location after same-site redirects.
	URL    string
	Header http.Header
	Body   []byte
}

// StatusError is returned for non-redirect responses outside 2xx.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func New(opts Options, logger *slog.Logger) (*Client, error) {
	defaults := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = defaults.MaxRedirects
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	return &Client{
		http:   client,
		opts:   opts,
		base:   base,
		logger: logger.With("component", "fetch"),
	}, nil
}

// SetTransport replaces the underlying round tripper.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// Request GETs path with the session's cookies. A redirect to a login page
// returns *models.SessionExpiredError. A nil session sends no cookies.
func (c *Client) Request(ctx context.Context, path string, session *models.Session, opts RequestOptions) (*Response, error) {
	target, err := c.resolve(c.base, path)
	if err != nil {
		return nil, err
	}
	if len(opts.Query) > 0 {
		q := target.Query()
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}
	if !c.sameHost(target) {
		return nil, fmt.Errorf("%w: %s", ErrForeignHost, target.Host)
	}

	for hop := 0; ; hop++ {
		req := c.http.R().SetContext(ctx).SetHeaders(opts.Headers)
		if cookie := session.CookieHeader(); cookie != "" {
			req.SetHeader("Cookie", cookie)
		}

		resp, err := req.Get(target.String())
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", target, err)
		}

		status := resp.StatusCode()
		if !isRedirect(status) {
			if status < 200 || status >= 300 {
				return nil, &StatusError{StatusCode: status, URL: target.String()}
			}
			return &Response{
				StatusCode: status,
				URL:        target.String(),
				Header:     resp.Header(),
				Body:       resp.Body(),
			}, nil
		}

		location := resp.Header().Get("Location")
		if location == "" {
			return nil, fmt.Errorf("redirect %d from %s without location", status, target)
		}
		if models.IsLoginURL(location) {
			c.logger.Warn("session expired", "url", target.String(), "location", location)
			return nil, &models.SessionExpiredError{Location: location}
		}
		if hop >= c.opts.MaxRedirects {
			return nil, fmt.Errorf("%w: %s", errTooManyRedirects, target)
		}

		next, err := c.resolve(target, location)
		if err != nil {
			return nil, err
		}
		if !c.sameHost(next) {
			c.logger.Warn("refusing redirect to foreign host", "url", target.String(), "location", next.String())
			return nil, fmt.Errorf("redirect to %w: %s", ErrForeignHost, next.Host)
		}
		c.logger.Debug("following redirect", "from", target.String(), "to", next.String(), "status", status)
		target = next
	}
}

func (c *Client) resolve(from *url.URL, ref string) (*url.URL, error) {
	if from == c.base && strings.HasPrefix(ref, "/") {
		// paths are relative to the base, which may carry a prefix such as /portal
		ref = strings.TrimRight(c.base.Path, "/") + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return from.ResolveReference(u), nil
}

func (c *Client) sameHost(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), c.base.Hostname()) && u.Port() == c.base.Port()
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
