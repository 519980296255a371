package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/discovery"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// ErrInvalidJob is returned by CreateJob for malformed requests.
var ErrInvalidJob = errors.New("invalid job")

type JobStore interface {
	Create(ctx context.Context, portal, mode string, items []models.WorkItem) (*models.Job, error)
	ClaimNext(ctx context.Context) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, status string, limit int) ([]*models.Job, error)
	Finish(ctx context.Context, id string, summary models.Summary, jobErr error) error
	Lines(ctx context.Context, id string, afterID int64, limit int) ([]models.JobLine, error)
	Stats(ctx context.Context) (*models.JobStats, error)
}

type JobRunner interface {
	CheckPortal(name string) error
	Extract(ctx context.Context, req Request) (models.Summary, error)
	Discover(ctx context.Context, portal string, useCookies bool) (*discovery.Dump, error)
}

// Catalog is a per-portal result store that can also seed work.
type Catalog interface {
	engine.Store
	ItemsMissingPrice(ctx context.Context, limit int) ([]models.WorkItem, error)
}

type JobObserver interface {
	JobFinished(portal, mode, status string, d time.Duration)
}

// Manager creates jobs and runs them one at a time from a polling worker.
type Manager struct {
	store    JobStore
	runner   JobRunner
	catalogs func(portal string) Catalog
	sinks    func(jobID string) engine.Sink
	observer JobObserver
	logger   *slog.Logger

	PollInterval time.Duration
	// SeedLimit caps the items taken from the catalog when a job has none.
	SeedLimit  int
	UseCookies bool
}

func NewManager(store JobStore, runner JobRunner, catalogs func(string) Catalog, sinks func(string) engine.Sink, observer JobObserver, logger *slog.Logger) *Manager {
	return &Manager{
		store:        store,
		runner:       runner,
		catalogs:     catalogs,
		sinks:        sinks,
		observer:     observer,
		logger:       logger.With("component", "job_manager"),
		PollInterval: 10 * time.Second,
		SeedLimit:    500,
	}
}

// CreateJob queues a job. Extract jobs without items are seeded from the
// catalog's items missing a price when they run.
func (m *Manager) CreateJob(ctx context.Context, portal, mode string, items []models.WorkItem) (*models.Job, error) {
	if mode == "" {
		mode = models.JobModeExtract
	}
	if mode != models.JobModeExtract && mode != models.JobModeDiscover {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidJob, mode)
	}
	if err := m.runner.CheckPortal(portal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	for _, item := range items {
		if item.Code == "" {
			return nil, fmt.Errorf("%w: item without code", ErrInvalidJob)
		}
	}

	job, err := m.store.Create(ctx, portal, mode, items)
	if err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "portal", portal, "mode", mode, "items", len(items))
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return m.store.List(ctx, status, limit)
}

func (m *Manager) JobLines(ctx context.Context, id string, afterID int64, limit int) ([]models.JobLine, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return m.store.Lines(ctx, id, afterID, limit)
}

func (m *Manager) GetStats(ctx context.Context) (*models.JobStats, error) {
	return m.store.Stats(ctx)
}
