package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, job *models.RenderJob) error
	GetByID(ctx context.Context, jobID string) (*models.RenderJob, error)
	// MarkRunning and MarkFinished persist the queued->running and
	// running->terminal transitions; they refuse to touch a job already in
	// a terminal state.
	MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error
	MarkFinished(ctx context.Context, jobID string, status models.JobStatus, errText string, finishedAt time.Time) error
}

type jobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewJobRepository(db *sqlx.DB, logger *zap.Logger) JobRepository {
	return &jobRepository{db: db, logger: logger}
}

func (r *jobRepository) Create(ctx context.Context, job *models.RenderJob) error {
	query := `INSERT INTO open_safely_jobs (job_id, email_id, target_url, allow_target_origin, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		job.JobID, job.EmailID, job.TargetURL, job.AllowTargetOrigin, job.Status, job.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create render job", zap.String("job_id", job.JobID), zap.Error(err))
	}
	return err
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (*models.RenderJob, error) {
	var job models.RenderJob
	query := `SELECT job_id, email_id, target_url, allow_target_origin, status,
	                 COALESCE(error, '') AS error, created_at, started_at, finished_at
	          FROM open_safely_jobs WHERE job_id = $1`
	err := r.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	query := `UPDATE open_safely_jobs SET status = $1, started_at = $2
	          WHERE job_id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.JobRunning, startedAt, jobID, models.JobQueued)
	if err != nil {
		r.logger.Error("Failed to mark job running", zap.String("job_id", jobID), zap.Error(err))
		return err
	}
	return requireRowAffected(res)
}

func (r *jobRepository) MarkFinished(ctx context.Context, jobID string, status models.JobStatus, errText string, finishedAt time.Time) error {
	query := `UPDATE open_safely_jobs SET status = $1, error = NULLIF($2, ''), finished_at = $3
	          WHERE job_id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, status, errText, finishedAt, jobID, models.JobRunning)
	if err != nil {
		r.logger.Error("Failed to mark job finished", zap.String("job_id", jobID), zap.Error(err))
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
