package database

import (
	"context"
	"fmt"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// JobLog records progress lines and errors of one job. Checkpoint lines
// also refresh the job's counters so the API can show live progress.
type JobLog struct {
	db    Querier
	jobID string
}

func NewJobLog(db Querier, jobID string) *JobLog {
	return &JobLog{db: db, jobID: jobID}
}

func (l *JobLog) AppendLine(ctx context.Context, text string, checkpoint *models.Checkpoint) error {
	if err := l.insert(ctx, models.JobLineProgress, text); err != nil {
		return err
	}
	if checkpoint == nil {
		return nil
	}

	_, err := l.db.Exec(ctx, `
		UPDATE scrape_job
		SET processed = $1, matched = $2, updated = $3, errors = $4, total = $5
		WHERE id = $6`,
		checkpoint.Processed, checkpoint.Matched, checkpoint.Updated,
		checkpoint.Errors, checkpoint.Total, l.jobID)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (l *JobLog) RecordError(ctx context.Context, text string) error {
	return l.insert(ctx, models.JobLineError, text)
}

func (l *JobLog) insert(ctx context.Context, kind, text string) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO job_log (job_id, kind, message) VALUES ($1, $2, $3)`,
		l.jobID, kind, text)
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}
