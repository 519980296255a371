package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// StartWorker polls for pending jobs until ctx is cancelled.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "poll_interval", m.PollInterval)

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			for m.processNextJob(ctx) {
			}
		}
	}
}

// processNextJob claims and runs one job. It reports whether a job was run.
func (m *Manager) processNextJob(ctx context.Context) bool {
	job, err := m.store.ClaimNext(ctx)
	if err != nil {
		m.logger.Error("failed to claim job", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	logger := m.logger.With("job", job.ID, "portal", job.Portal, "mode", job.Mode)
	logger.Info("processing job", "items", len(job.Items))

	start := time.Now()
	summary, jobErr := m.runJob(ctx, job)

	status := models.JobStatusCompleted
	if jobErr != nil {
		status = models.JobStatusFailed
		logger.Error("job failed", "error", jobErr)
	}

	// The job row must reach a terminal state even if ctx was cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := m.store.Finish(finishCtx, job.ID, summary, jobErr); err != nil {
		logger.Error("failed to finish job", "error", err)
	}
	if m.observer != nil {
		m.observer.JobFinished(job.Portal, job.Mode, status, time.Since(start))
	}

	logger.Info("job finished",
		"status", status,
		"processed", summary.Processed,
		"updated", summary.Updated,
		"errors", summary.Errors,
		"duration", time.Since(start))
	return ctx.Err() == nil
}

func (m *Manager) runJob(ctx context.Context, job *models.Job) (models.Summary, error) {
	sink := m.sinks(job.ID)

	if job.Mode == models.JobModeDiscover {
		return models.Summary{}, m.runDiscovery(ctx, job, sink)
	}

	catalog := m.catalogs(job.Portal)
	items := job.Items
	if len(items) == 0 {
		var err error
		if items, err = catalog.ItemsMissingPrice(ctx, m.SeedLimit); err != nil {
			return models.Summary{}, fmt.Errorf("failed to seed work items: %w", err)
		}
		m.line(ctx, sink, fmt.Sprintf("seeded %d items missing price data", len(items)))
	}
	if len(items) == 0 {
		m.line(ctx, sink, "no items to process")
		return models.Summary{}, nil
	}

	return m.runner.Extract(ctx, Request{
		Portal:     job.Portal,
		Items:      items,
		UseCookies: m.UseCookies,
		Store:      catalog,
		Sink:       sink,
	})
}

func (m *Manager) runDiscovery(ctx context.Context, job *models.Job, sink engine.Sink) error {
	dump, err := m.runner.Discover(ctx, job.Portal, m.UseCookies)
	if err != nil {
		return err
	}

	m.line(ctx, sink, fmt.Sprintf("discovery of %s: %d forms, %d inputs, %d card candidates",
		dump.URL, len(dump.Forms), len(dump.Inputs), len(dump.Cards)))
	for _, card := range dump.Cards {
		m.line(ctx, sink, "card: "+card.Text)
	}
	for _, note := range dump.Notes {
		m.line(ctx, sink, "note: "+note)
	}
	if dump.Screenshot != "" {
		m.line(ctx, sink, "screenshot: "+dump.Screenshot)
	}
	return nil
}

func (m *Manager) line(ctx context.Context, sink engine.Sink, text string) {
	if err := sink.AppendLine(ctx, text, nil); err != nil {
		m.logger.Warn("failed to append job log line", "error", err)
	}
}
