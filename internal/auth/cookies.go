package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/titanous/json5"
)

// CookieSource points at cookies exported from a real browser session.
// File takes precedence over Raw.
type CookieSource struct {
	Portal string
	// File is a JSON cookie export: a bare array or a storage state object
	// with a "cookies" key.
	File string
	// Raw is a Cookie header value such as "a=1; b=2".
	Raw string
	// Domain is applied to raw cookies, which carry no domain of their own.
	Domain string
}

func (s CookieSource) Configured() bool {
	return s.File != "" || strings.TrimSpace(s.Raw) != ""
}

type exportedCookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Expires        float64 `json:"expires"`
	ExpirationDate float64 `json:"expirationDate"`
	HTTPOnly       bool    `json:"httpOnly"`
	Secure         bool    `json:"secure"`
}

type storageState struct {
	Cookies []exportedCookie `json:"cookies"`
}

// ImportSession builds a session from src without checking that the portal
// accepts it. Stale cookies surface later as session expiry.
func ImportSession(src CookieSource) (*models.Session, error) {
	if !src.Configured() {
		return nil, &models.ConfigError{
			Portal: src.Portal,
			Field:  "cookie source",
			Reason: "neither a cookie file nor a raw cookie string is configured",
		}
	}

	var (
		cookies []models.Cookie
		err     error
	)
	if src.File != "" {
		cookies, err = readCookieFile(src.File)
		if err != nil {
			return nil, &models.ConfigError{Portal: src.Portal, Field: "cookie file", Reason: err.Error()}
		}
	} else {
		cookies = ParseCookieString(src.Raw, src.Domain)
	}

	if len(cookies) == 0 {
		return nil, &models.ConfigError{Portal: src.Portal, Field: "cookie source", Reason: "no cookies found"}
	}
	return models.NewSession(cookies, models.SessionSourceImport, ""), nil
}

func readCookieFile(path string) ([]models.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var exported []exportedCookie
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		err = json5.Unmarshal(data, &exported)
	} else {
		var state storageState
		err = json5.Unmarshal(data, &state)
		exported = state.Cookies
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cookies := make([]models.Cookie, 0, len(exported))
	for _, c := range exported {
		if c.Name == "" {
			continue
		}
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		expires := c.Expires
		if expires <= 0 {
			expires = c.ExpirationDate
		}
		if expires > 0 {
			cookie.Expires = time.Unix(int64(expires), 0)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

// ParseCookieString splits a Cookie header value into cookies.
func ParseCookieString(raw, domain string) []models.Cookie {
	var cookies []models.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, models.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}
