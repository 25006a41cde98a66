package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
)

// Detections and rewrites are append-only history: a new verdict is a new
// row, never an update, and the newest row wins on read.

type DetectionRepository interface {
	Save(ctx context.Context, d *models.Detection) error
	LatestByEmail(ctx context.Context, emailID string) (*models.Detection, error)
}

type detectionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewDetectionRepository(db *sqlx.DB, logger *zap.Logger) DetectionRepository {
	return &detectionRepository{db: db, logger: logger}
}

func (r *detectionRepository) Save(ctx context.Context, d *models.Detection) error {
	query := `INSERT INTO detections (email_id, label, risk_score, reasons, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		d.EmailID, d.Label, d.RiskScore, d.Reasons, d.CreatedAt).Scan(&d.ID)
	if err != nil {
		r.logger.Error("Failed to save detection", zap.String("email_id", d.EmailID), zap.Error(err))
	}
	return err
}

func (r *detectionRepository) LatestByEmail(ctx context.Context, emailID string) (*models.Detection, error) {
	var d models.Detection
	query := `SELECT id, email_id, label, risk_score, reasons, created_at
	          FROM detections WHERE email_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	err := r.db.GetContext(ctx, &d, query, emailID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

type RewriteRepository interface {
	Save(ctx context.Context, rw *models.Rewrite) error
	LatestByEmail(ctx context.Context, emailID string) (*models.Rewrite, error)
}

type rewriteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRewriteRepository(db *sqlx.DB, logger *zap.Logger) RewriteRepository {
	return &rewriteRepository{db: db, logger: logger}
}

func (r *rewriteRepository) Save(ctx context.Context, rw *models.Rewrite) error {
	query := `INSERT INTO rewrites (email_id, safe_subject, safe_body, used_llm, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		rw.EmailID, rw.SafeSubject, rw.SafeBody, rw.UsedLLM, rw.CreatedAt).Scan(&rw.ID)
	if err != nil {
		r.logger.Error("Failed to save rewrite", zap.String("email_id", rw.EmailID), zap.Error(err))
	}
	return err
}

func (r *rewriteRepository) LatestByEmail(ctx context.Context, emailID string) (*models.Rewrite, error) {
	var rw models.Rewrite
	query := `SELECT id, email_id, safe_subject, safe_body, used_llm, created_at
	          FROM rewrites WHERE email_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	err := r.db.GetContext(ctx, &rw, query, emailID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rw, nil
}
