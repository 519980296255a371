package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportSessionNotConfigured(t *testing.T) {
	_, err := ImportSession(CookieSource{Portal: "tradehub", Raw: "   "})

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tradehub", cfgErr.Portal)
}

func TestImportSessionFromArray(t *testing.T) {
	path := writeFile(t, `[
		{"name": "sid", "value": "s1", "domain": ".trade.example.com", "path": "/", "expirationDate": 1893456000, "httpOnly": true},
		{"name": "", "value": "ignored"},
		{"name": "pref", "value": "grid", "expires": -1},
	]`)

	session, err := ImportSession(CookieSource{File: path, Raw: "ignored=1"})
	require.NoError(t, err)

	assert.Equal(t, models.SessionSourceImport, session.Source)
	require.Len(t, session.Cookies, 2)
	assert.Equal(t, time.Unix(1893456000, 0), session.Cookies[0].Expires)
	assert.True(t, session.Cookies[0].HTTPOnly)
	assert.True(t, session.Cookies[1].Expires.IsZero())
	assert.Equal(t, "sid=s1; pref=grid", session.CookieHeader())
}

func TestImportSessionFromStorageState(t *testing.T) {
	path := writeFile(t, `{
		// exported with playwright
		cookies: [{"name": "sid", "value": "s2", "domain": "dealers.example.com", "expires": 1893456000}],
		origins: [],
	}`)

	session, err := ImportSession(CookieSource{File: path})
	require.NoError(t, err)
	assert.Equal(t, "sid=s2", session.CookieHeader())
}

func TestImportSessionBadFile(t *testing.T) {
	_, err := ImportSession(CookieSource{File: filepath.Join(t.TempDir(), "missing.json")})
	var cfgErr *models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = ImportSession(CookieSource{File: writeFile(t, `{"cookies": []}`)})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParseCookieString(t *testing.T) {
	cookies := ParseCookieString(" sid=abc ; theme = dark;broken; =x; token=a=b", "dealers.example.com")

	assert.Equal(t, []models.Cookie{
		{Name: "sid", Value: "abc", Domain: "dealers.example.com", Path: "/"},
		{Name: "theme", Value: "dark", Domain: "dealers.example.com", Path: "/"},
		{Name: "token", Value: "a=b", Domain: "dealers.example.com", Path: "/"},
	}, cookies)
}
