// Package engine runs a batch of work items against one portal, keeping the
// session alive and the error log bounded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/dealer-portal-scraper/internal/adapter"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/ratelimit"
)

const (
	OutcomeUpdated = "updated"
	OutcomeMatched = "matched"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Deps are the collaborators of one job. Fetcher, Sink, Limiter and
// Recorder are optional.
type Deps struct {
	Site     adapter.SiteAdapter
	Page     browser.Page
	Auth     Authenticator
	Fetcher  Fetcher
	Store    Store
	Sink     Sink
	Limiter  Limiter
	Recorder Recorder
}

// Engine owns the session, error budget and failure counter of a single
// job. It is not safe for concurrent use.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	// Force skips the probe when set to StrategyFetch or StrategyBrowser.
	Force string
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Site == nil || deps.Page == nil || deps.Auth == nil || deps.Store == nil {
		return nil, errors.New("engine: site, page, auth and store are required")
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewJittered(cfg.delay(), cfg.delay()+cfg.ItemJitter)
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "engine", "portal", deps.Site.Name()),
	}, nil
}

// run holds the mutable state of one Run call.
type run struct {
	summary  models.Summary
	budget   *ErrorBudget
	failures int
	session  *models.Session
	total    int
}

// Run extracts every item in order. A nil or empty session logs in first.
// Fatal errors (*models.ConfigError, *models.AuthError) stop the loop but
// the summary gathered so far is still returned.
func (e *Engine) Run(ctx context.Context, items []models.WorkItem, session *models.Session) (models.Summary, error) {
	r := &run{
		budget:  NewErrorBudget(e.cfg.loggedErrors()),
		session: session,
		total:   len(items),
	}

	if r.session.Empty() {
		s, err := e.deps.Auth.Authenticate(ctx, e.deps.Page)
		if err != nil {
			e.line(ctx, fmt.Sprintf("aborting before the first item: %v", err), nil)
			return r.summary, err
		}
		r.session = s
	}

	extractor := e.selectExtractor(ctx, items, r.session)
	r.summary.Strategy = extractor.Name()
	if err := extractor.Prepare(ctx, r.session); err != nil {
		e.line(ctx, fmt.Sprintf("aborting before the first item: %v", err), nil)
		return r.summary, fmt.Errorf("prepare %s strategy: %w", extractor.Name(), err)
	}

	e.line(ctx, fmt.Sprintf("starting %d items using %s strategy", r.total, extractor.Name()), nil)
	e.logger.Info("extraction started", "items", r.total, "strategy", extractor.Name())

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			e.line(ctx, fmt.Sprintf("cancelled after %d/%d items", r.summary.Processed, r.total), nil)
			return r.summary, err
		}

		if err := e.processItem(ctx, r, extractor, i, item); err != nil {
			e.line(ctx, fmt.Sprintf("aborting after %d/%d items: %v", r.summary.Processed, r.total, err), nil)
			e.logger.Error("extraction aborted", "processed", r.summary.Processed, "error", err)
			return r.summary, err
		}

		last := i == len(items)-1
		if (i+1)%e.cfg.CheckpointEvery == 0 || last {
			cp := r.summary.Checkpoint(r.total)
			e.line(ctx, "checkpoint: "+cp.String(), &cp)
		}
		if !last {
			if err := e.deps.Limiter.Wait(ctx); err != nil {
				return r.summary, err
			}
		}
	}

	e.logger.Info("extraction finished",
		"processed", r.summary.Processed,
		"matched", r.summary.Matched,
		"updated", r.summary.Updated,
		"errors", r.summary.Errors,
		"reauthentications", r.summary.Reauthentications)
	return r.summary, nil
}

// processItem handles one item. It only returns fatal errors.
func (e *Engine) processItem(ctx context.Context, r *run, extractor Extractor, index int, item models.WorkItem) error {
	result, err := extractor.Extract(ctx, item, r.session)
	if errors.Is(err, models.ErrSessionExpired) {
		e.line(ctx, fmt.Sprintf("session expired at item %s, re-authenticating", item.Code), nil)
		if authErr := e.reauthenticate(ctx, r, extractor); authErr != nil {
			return authErr
		}
		e.line(ctx, fmt.Sprintf("re-authenticated, resuming at item %d/%d", index+1, r.total), nil)

		result, err = extractor.Extract(ctx, item, r.session)
		if errors.Is(err, models.ErrSessionExpired) {
			err = &models.ItemError{Item: item.Code, Stage: "session", Err: err}
		}
	}

	r.summary.Processed++

	outcome := OutcomeEmpty
	if err == nil && result != nil {
		r.summary.Matched++
		outcome = OutcomeMatched

		updated, storeErr := e.deps.Store.Upsert(ctx, result)
		switch {
		case storeErr != nil:
			err = &models.ItemError{Item: item.Code, Stage: "persist", Err: storeErr}
		case updated:
			r.summary.Updated++
			outcome = OutcomeUpdated
		}
	}

	if err == nil {
		r.failures = 0
		e.deps.Recorder.ItemProcessed(e.deps.Site.Name(), r.summary.Strategy, outcome)
		return nil
	}

	e.deps.Recorder.ItemProcessed(e.deps.Site.Name(), r.summary.Strategy, OutcomeError)
	e.recordError(ctx, r, item, err)
	r.failures++

	if r.failures < e.cfg.FailureThreshold {
		return nil
	}

	e.line(ctx, fmt.Sprintf("%d consecutive failures, re-authenticating", r.failures), nil)
	authErr := e.reauthenticate(ctx, r, extractor)
	r.failures = 0
	if authErr != nil {
		return authErr
	}
	if index+1 < r.total {
		e.line(ctx, fmt.Sprintf("re-authenticated, resuming at item %d/%d", index+2, r.total), nil)
	}
	return nil
}

func (e *Engine) recordError(ctx context.Context, r *run, item models.WorkItem, err error) {
	r.summary.Errors++
	if !r.budget.Record() {
		return
	}

	var itemErr *models.ItemError
	text := err.Error()
	if !errors.As(err, &itemErr) {
		text = fmt.Sprintf("item %s: %v", item.Code, err)
	}
	if sinkErr := e.deps.Sink.RecordError(ctx, text); sinkErr != nil {
		e.logger.Warn("failed to record error", "error", sinkErr)
	}
	if r.budget.Exhausted() {
		e.line(ctx, fmt.Sprintf("error log limit of %d reached, further errors are only counted", r.budget.Logged()), nil)
	}
}

// reauthenticate replaces the session. Failure is fatal for the job.
func (e *Engine) reauthenticate(ctx context.Context, r *run, extractor Extractor) error {
	r.summary.Reauthentications++
	portal := e.deps.Site.Name()

	session, err := e.deps.Auth.Authenticate(ctx, e.deps.Page)
	if err == nil {
		err = extractor.Prepare(ctx, session)
	}
	if err != nil {
		e.deps.Recorder.Reauthenticated(portal, false)
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return &models.AuthError{Portal: portal, Stage: "reauthenticate", Err: err}
	}

	e.deps.Recorder.Reauthenticated(portal, true)
	r.session = session
	e.logger.Info("re-authenticated", "cookies", len(session.Cookies))
	return nil
}

func (e *Engine) selectExtractor(ctx context.Context, items []models.WorkItem, session *models.Session) Extractor {
	strategy := e.Force
	if strategy == "" {
		strategy = Probe(ctx, e.deps.Site, e.deps.Fetcher, session, items, e.cfg.ProbeSample, e.logger)
	}
	if strategy == StrategyFetch && e.deps.Fetcher != nil {
		return NewFetchExtractor(e.deps.Site, e.deps.Fetcher)
	}
	return NewBrowserExtractor(e.deps.Site, e.deps.Page, e.cfg.SettleTimeout, e.logger)
}

func (e *Engine) line(ctx context.Context, text string, cp *models.Checkpoint) {
	if err := e.deps.Sink.AppendLine(ctx, text, cp); err != nil {
		e.logger.Warn("failed to append log line", "error", err)
	}
}
