package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/auth"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/titanous/json5"
)

// Portal is one entry of the portals file. Secrets never live in the file;
// it only names the environment variables that hold them.
type Portal struct {
	Name           string   `json:"-"`
	Adapter        string   `json:"adapter"`
	BaseURL        string   `json:"base_url"`
	LoginURL       string   `json:"login_url"`
	EntryURL       string   `json:"entry_url"`
	DiscoveryQuery string   `json:"discovery_query"`
	ErrorPhrases   []string `json:"error_phrases"`

	UsernameEnv     string `json:"username_env"`
	PasswordEnv     string `json:"password_env"`
	CookieFileEnv   string `json:"cookie_file_env"`
	CookieStringEnv string `json:"cookie_string_env"`
	CookieDomain    string `json:"cookie_domain"`

	Tuning Tuning `json:"engine"`
}

// Tuning overrides engine settings for one portal. Zero values fall back to
// the process settings, max_logged_errors -1 and item_delay "off" disable.
type Tuning struct {
	FailureThreshold int    `json:"failure_threshold"`
	MaxLoggedErrors  int    `json:"max_logged_errors"`
	CheckpointEvery  int    `json:"checkpoint_every"`
	ItemDelay        string `json:"item_delay"`
	ItemJitter       string `json:"item_jitter"`
	ProbeSample      int    `json:"probe_sample"`
}

// LoadPortals reads the portals file. A missing file yields no portals.
func LoadPortals(path string) (map[string]Portal, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Portal{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portals file: %w", err)
	}
	return ParsePortals(data)
}

func ParsePortals(data []byte) (map[string]Portal, error) {
	var raw map[string]Portal
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse portals file: %w", err)
	}

	portals := make(map[string]Portal, len(raw))
	for name, p := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		p.Name = name
		if p.Adapter == "" {
			p.Adapter = name
		}
		prefix := envPrefix(name)
		if p.UsernameEnv == "" {
			p.UsernameEnv = prefix + "_USERNAME"
		}
		if p.PasswordEnv == "" {
			p.PasswordEnv = prefix + "_PASSWORD"
		}
		if p.CookieFileEnv == "" {
			p.CookieFileEnv = prefix + "_COOKIE_FILE"
		}
		if p.CookieStringEnv == "" {
			p.CookieStringEnv = prefix + "_COOKIES"
		}
		portals[name] = p
	}
	return portals, nil
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

// Portal looks up a configured portal by name.
func (c *Config) Portal(name string) (Portal, error) {
	p, ok := c.Portals[strings.ToLower(name)]
	if !ok {
		return Portal{}, &models.ConfigError{
			Portal: name,
			Field:  "portal",
			Reason: fmt.Sprintf("not defined in %s (known: %s)", c.PortalsFile, strings.Join(c.PortalNames(), ", ")),
		}
	}
	return p, nil
}

func (c *Config) PortalNames() []string {
	names := make([]string, 0, len(c.Portals))
	for name := range c.Portals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Portal) AdapterOptions() adapter.Options {
	return adapter.Options{
		BaseURL:        p.BaseURL,
		LoginURL:       p.LoginURL,
		EntryURL:       p.EntryURL,
		DiscoveryQuery: p.DiscoveryQuery,
		ErrorPhrases:   p.ErrorPhrases,
	}
}

func (p Portal) NewAdapter() (adapter.SiteAdapter, error) {
	return adapter.New(p.Adapter, p.AdapterOptions())
}

// Credentials reads the username and password from the environment.
func (p Portal) Credentials() (models.Credentials, error) {
	creds := models.Credentials{
		Username: os.Getenv(p.UsernameEnv),
		Password: os.Getenv(p.PasswordEnv),
	}
	if !creds.Complete() {
		return creds, &models.ConfigError{
			Portal: p.Name,
			Field:  "credentials",
			Reason: fmt.Sprintf("set %s and %s", p.UsernameEnv, p.PasswordEnv),
		}
	}
	return creds, nil
}

// CookieSource reads the cookie import settings from the environment.
func (p Portal) CookieSource() (auth.CookieSource, error) {
	src := auth.CookieSource{
		Portal: p.Name,
		File:   os.Getenv(p.CookieFileEnv),
		Raw:    os.Getenv(p.CookieStringEnv),
		Domain: p.CookieDomain,
	}
	if !src.Configured() {
		return src, &models.ConfigError{
			Portal: p.Name,
			Field:  "cookie source",
			Reason: fmt.Sprintf("set %s or %s", p.CookieFileEnv, p.CookieStringEnv),
		}
	}
	return src, nil
}

// EngineConfig layers portal tuning over the process-wide settings. Fields
// left zero in both are filled by engine defaults.
func (c *Config) EngineConfig(p Portal) (engine.Config, error) {
	cfg := engine.Config{
		FailureThreshold: p.Tuning.FailureThreshold,
		MaxLoggedErrors:  p.Tuning.MaxLoggedErrors,
		CheckpointEvery:  p.Tuning.CheckpointEvery,
		ProbeSample:      p.Tuning.ProbeSample,
	}
	var err error
	if cfg.ItemDelay, err = p.Tuning.duration("item_delay", p.Tuning.ItemDelay, p.Name); err != nil {
		return engine.Config{}, err
	}
	if cfg.ItemJitter, err = p.Tuning.duration("item_jitter", p.Tuning.ItemJitter, p.Name); err != nil {
		return engine.Config{}, err
	}

	global := engine.Config{
		FailureThreshold: c.Engine.FailureThreshold,
		MaxLoggedErrors:  c.Engine.MaxLoggedErrors,
		CheckpointEvery:  c.Engine.CheckpointEvery,
		ItemDelay:        c.Engine.ItemDelay,
		ItemJitter:       c.Engine.ItemJitter,
		ProbeSample:      c.Engine.ProbeSample,
		SettleTimeout:    c.Browser.NavTimeout / 3,
	}
	if err := mergo.Merge(&cfg, global); err != nil {
		return engine.Config{}, fmt.Errorf("merge engine config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// duration parses a tuning duration. "off" maps to engine.Off and an empty
// value leaves the field to the defaults.
func (Tuning) duration(field, raw, portal string) (time.Duration, error) {
	switch raw {
	case "":
		return 0, nil
	case "off":
		return engine.Off, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &models.ConfigError{Portal: portal, Field: "engine." + field, Reason: err.Error()}
	}
	return d, nil
}
