package engine

import (
	"context"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// Sink receives progress lines and error records. Its failures are logged
// and otherwise ignored.
type Sink interface {
	AppendLine(ctx context.Context, text string, checkpoint *models.Checkpoint) error
	RecordError(ctx context.Context, text string) error
}

// Store persists results keyed by item code. Upsert reports whether a row
// was inserted or changed.
type Store interface {
	Upsert(ctx context.Context, result *models.Result) (bool, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, page browser.Page) (*models.Session, error)
}

type Fetcher interface {
	Request(ctx context.Context, path string, session *models.Session, opts fetch.RequestOptions) (*fetch.Response, error)
}

type Limiter interface {
	Wait(ctx context.Context) error
}

// Recorder observes item outcomes, typically for metrics.
type Recorder interface {
	ItemProcessed(portal, strategy, outcome string)
	Reauthenticated(portal string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ItemProcessed(string, string, string) {}
func (nopRecorder) Reauthenticated(string, bool)         {}

type nopSink struct{}

func (nopSink) AppendLine(context.Context, string, *models.Checkpoint) error { return nil }
func (nopSink) RecordError(context.Context, string) error                   { return nil }
