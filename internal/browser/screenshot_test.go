package browser_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenshotterCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	shots := browser.NewScreenshotter(dir, slog.Default())
	page := browsertest.NewPage("https://portal.example/login")

	path := shots.Capture(page, "login failed/verify")

	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "login-failed-verify-"))
	assert.True(t, strings.HasSuffix(path, ".png"))
	assert.Equal(t, []string{path}, page.Shots)

	_, err := os.Stat(dir)
	assert.NoError(t, err)
}

func TestScreenshotterSwallowsFailures(t *testing.T) {
	shots := browser.NewScreenshotter(t.TempDir(), slog.Default())
	page := browsertest.NewPage("https://portal.example/login")
	page.ScreenshotFn = func(string) error { return errors.New("target closed") }

	assert.Equal(t, "", shots.Capture(page, "no-email-field"))

	var nilShots *browser.Screenshotter
	assert.Equal(t, "", nilShots.Capture(page, "anything"))
	assert.Equal(t, "", browser.NewScreenshotter("", slog.Default()).Capture(page, "disabled"))
}
