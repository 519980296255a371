package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// JobRepository stores scrape jobs and their logs.
type JobRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewJobRepository(db *DB, outbox *OutboxRepository) *JobRepository {
	return &JobRepository{db: db, outbox: outbox}
}

const jobColumns = `
	id, portal, mode, items, status, strategy,
	processed, matched, updated, errors, total,
	COALESCE(error, ''), created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	var id uuid.UUID
	err := row.Scan(
		&id, &job.Portal, &job.Mode, &job.Items, &job.Status, &job.Strategy,
		&job.Processed, &job.Matched, &job.Updated, &job.Errors, &job.Total,
		&job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ID = id.String()
	return job, nil
}

func (r *JobRepository) Create(ctx context.Context, portal, mode string, items []models.WorkItem) (*models.Job, error) {
	if items == nil {
		items = []models.WorkItem{}
	}
	job := &models.Job{
		ID:        uuid.New().String(),
		Portal:    portal,
		Mode:      mode,
		Items:     items,
		Status:    models.JobStatusPending,
		Total:     len(items),
		CreatedAt: time.Now(),
	}

	query := `
		INSERT INTO scrape_job (id, portal, mode, items, status, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.Portal, job.Mode, job.Items, job.Status, job.Total, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// ClaimNext moves the oldest pending job to running and returns it. It
// returns nil when nothing is pending. Concurrent workers never claim the
// same job.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.Job, error) {
	query := `
		UPDATE scrape_job SET status = $1, started_at = now()
		WHERE id = (
			SELECT id FROM scrape_job
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + jobColumns

	job, err := scanJob(r.db.QueryRow(ctx, query, models.JobStatusRunning, models.JobStatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, models.ErrJobNotFound
	}

	job, err := scanJob(r.db.QueryRow(ctx, `SELECT`+jobColumns+` FROM scrape_job WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs, optionally filtered by status.
func (r *JobRepository) List(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM scrape_job
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// ScrapeJobFinished is the payload of EventScrapeJobFinished.
type ScrapeJobFinished struct {
	JobID   string         `json:"job_id"`
	Portal  string         `json:"portal"`
	Status  string         `json:"status"`
	Summary models.Summary `json:"summary"`
	Error   *string        `json:"error,omitempty"`
}

// Finish stores the final summary and status. A non-nil jobErr marks the job
// failed. A SCRAPE_JOB_FINISHED event is written in the same transaction.
func (r *JobRepository) Finish(ctx context.Context, id string, summary models.Summary, jobErr error) error {
	status := models.JobStatusCompleted
	var errText *string
	if jobErr != nil {
		status = models.JobStatusFailed
		msg := jobErr.Error()
		errText = &msg
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE scrape_job
			SET status = $1, strategy = $2, processed = $3, matched = $4,
				updated = $5, errors = $6, error = $7, completed_at = now()
			WHERE id = $8
			RETURNING portal`

		var portal string
		err := tx.QueryRow(ctx, query,
			status, summary.Strategy, summary.Processed, summary.Matched,
			summary.Updated, summary.Errors, errText, id,
		).Scan(&portal)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to finish job: %w", err)
		}

		if r.outbox == nil {
			return nil
		}
		event, err := NewOutboxEvent(AggregateScrapeJob, id, EventScrapeJobFinished, ScrapeJobFinished{
			JobID:   id,
			Portal:  portal,
			Status:  status,
			Summary: summary,
			Error:   errText,
		})
		if err != nil {
			return err
		}
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
}

// Lines returns up to limit log lines of a job in insertion order, starting
// after the line with id afterID.
func (r *JobRepository) Lines(ctx context.Context, id string, afterID int64, limit int) ([]models.JobLine, error) {
	query := `
		SELECT id, kind, message, created_at
		FROM job_log
		WHERE job_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, id, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job log: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.JobLine])
	if err != nil {
		return nil, fmt.Errorf("failed to scan job log: %w", err)
	}
	return lines, nil
}

func (r *JobRepository) Stats(ctx context.Context) (*models.JobStats, error) {
	stats := &models.JobStats{}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4)
		FROM scrape_job`,
		models.JobStatusPending, models.JobStatusRunning,
		models.JobStatusCompleted, models.JobStatusFailed,
	).Scan(&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE price > 0)
		FROM catalog_item`,
	).Scan(&stats.CatalogItems, &stats.PricedItems)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog stats: %w", err)
	}

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}
	return stats, nil
}
