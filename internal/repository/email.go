package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
)

type EmailRepository interface {
	Save(ctx context.Context, email *models.Email) error
	GetByID(ctx context.Context, id string) (*models.Email, error)
	List(ctx context.Context, limit int) ([]*models.Email, error)
}

type emailRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewEmailRepository(db *sqlx.DB, logger *zap.Logger) EmailRepository {
	return &emailRepository{db: db, logger: logger}
}

func (r *emailRepository) Save(ctx context.Context, email *models.Email) error {
	query := `INSERT INTO emails (id, source, subject, from_addr, to_addr, date_hdr, raw_headers,
	                              body_text, body_html, extracted_urls, defanged_urls, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		email.ID, email.Source, email.Subject, email.FromAddr, email.ToAddr, email.DateHdr,
		email.RawHeaders, email.BodyText, email.BodyHTML,
		email.ExtractedURLs, email.DefangedURLs, email.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to save email", zap.String("email_id", email.ID), zap.Error(err))
	}
	return err
}

func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	var email models.Email
	query := `SELECT id, source, subject, from_addr, to_addr, date_hdr, raw_headers,
	                 body_text, body_html, extracted_urls, defanged_urls, created_at
	          FROM emails WHERE id = $1`
	err := r.db.GetContext(ctx, &email, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) List(ctx context.Context, limit int) ([]*models.Email, error) {
	emails := []*models.Email{}
	query := `SELECT id, source, subject, from_addr, to_addr, date_hdr, raw_headers,
	                 body_text, body_html, extracted_urls, defanged_urls, created_at
	          FROM emails ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &emails, query, limit); err != nil {
		return nil, err
	}
	return emails, nil
}
