package models

import (
	"strings"
	"time"
)

// Credentials identify the dealer account used to log into a portal.
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both the username and password are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
}

// SessionSource records how a session was obtained.
type SessionSource string

const (
	SessionSourceLogin  SessionSource = "login"
	SessionSourceImport SessionSource = "import"
)

// Session is the authenticated cookie state reused across the requests of one job.
type Session struct {
	Cookies    []Cookie
	Source     SessionSource
	ObtainedAt time.Time
	// LoginURL is the page the session was obtained from, empty for imports.
	LoginURL string
}

func NewSession(cookies []Cookie, source SessionSource, loginURL string) *Session {
	return &Session{
		Cookies:    cookies,
		Source:     source,
		ObtainedAt: time.Now(),
		LoginURL:   loginURL,
	}
}

// CookieHeader renders the cookies as a single Cookie request header value.
func (s *Session) CookieHeader() string {
	if s == nil {
		return ""
	}

	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func (s *Session) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}
