package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Screenshotter writes diagnostic captures into a directory. Failures are
// logged and swallowed: a missing screenshot never fails a job.
type Screenshotter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewScreenshotter(dir string, logger *slog.Logger) *Screenshotter {
	return &Screenshotter{
		dir:    dir,
		logger: logger.With("component", "screenshots"),
		now:    time.Now,
	}
}

// Capture saves a full-page screenshot named after label and the current
// time and returns its path, or "" when nothing was written.
func (s *Screenshotter) Capture(page Page, label string) string {
	if s == nil || s.dir == "" || page == nil {
		return ""
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("failed to create screenshot dir", "dir", s.dir, "error", err)
		return ""
	}

	path := filepath.Join(s.dir, s.filename(label))
	if err := page.Screenshot(path); err != nil {
		s.logger.Warn("failed to take screenshot", "label", label, "error", err)
		return ""
	}

	s.logger.Info("screenshot saved", "label", label, "path", path)
	return path
}

func (s *Screenshotter) filename(label string) string {
	label = strings.Trim(unsafeLabelChars.ReplaceAllString(label, "-"), "-")
	if label == "" {
		label = "screenshot"
	}
	return fmt.Sprintf("%s-%s.png", label, s.now().Format("20060102-150405.000"))
}
