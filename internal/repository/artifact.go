package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
)

type ArtifactRepository interface {
	Save(ctx context.Context, a *models.Artifact) error
	ListByJob(ctx context.Context, jobID string) ([]*models.Artifact, error)
	GetByJobAndName(ctx context.Context, jobID, name string) (*models.Artifact, error)
}

type artifactRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewArtifactRepository(db *sqlx.DB, logger *zap.Logger) ArtifactRepository {
	return &artifactRepository{db: db, logger: logger}
}

func (r *artifactRepository) Save(ctx context.Context, a *models.Artifact) error {
	query := `INSERT INTO artifacts (job_id, name, rel_path, sha256, mime, size_bytes, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		a.JobID, a.Name, a.RelPath, a.SHA256, a.MIME, a.SizeBytes, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		r.logger.Error("Failed to save artifact",
			zap.String("job_id", a.JobID),
			zap.String("name", a.Name),
			zap.Error(err))
	}
	return err
}

func (r *artifactRepository) ListByJob(ctx context.Context, jobID string) ([]*models.Artifact, error) {
	artifacts := []*models.Artifact{}
	query := `SELECT id, job_id, name, rel_path, COALESCE(sha256, '') AS sha256,
	                 COALESCE(mime, '') AS mime, COALESCE(size_bytes, 0) AS size_bytes, created_at
	          FROM artifacts WHERE job_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &artifacts, query, jobID); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (r *artifactRepository) GetByJobAndName(ctx context.Context, jobID, name string) (*models.Artifact, error) {
	var a models.Artifact
	query := `SELECT id, job_id, name, rel_path, COALESCE(sha256, '') AS sha256,
	                 COALESCE(mime, '') AS mime, COALESCE(size_bytes, 0) AS size_bytes, created_at
	          FROM artifacts WHERE job_id = $1 AND name = $2`
	err := r.db.GetContext(ctx, &a, query, jobID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
