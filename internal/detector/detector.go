package detector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/ai_engine"
	"github.com/Mananshah237/PhishNet/internal/heuristics"
	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

// Classifier is the model-backed path. ok is false when the backend failed
// and the result is the failure sentinel.
type Classifier interface {
	DetectEmail(ctx context.Context, subject, from, body string, urls []string) (ai_engine.DetectionResult, bool)
}

// Service runs one detection per call and persists exactly one row for it.
// The model path is used only when the caller asks for it and a classifier
// is configured; everything else goes through the heuristic engine.
type Service struct {
	emails     repository.EmailRepository
	detections repository.DetectionRepository
	classifier Classifier
	logger     *zap.Logger
}

func NewService(emails repository.EmailRepository, detections repository.DetectionRepository,
	classifier Classifier, logger *zap.Logger) *Service {
	return &Service{
		emails:     emails,
		detections: detections,
		classifier: classifier,
		logger:     logger,
	}
}

// Detect scores the email and stores the verdict. When the model path fails
// the heuristic engine takes over and the stored reasons say so, but the
// call itself still succeeds.
func (s *Service) Detect(ctx context.Context, emailID string, useAI bool) (*models.Detection, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load email: %w", err)
	}

	var (
		score   int
		label   models.Label
		reasons []string
	)

	if useAI && s.classifier != nil {
		res, ok := s.classifier.DetectEmail(ctx, email.Subject, email.FromAddr, email.BodyText, email.ExtractedURLs)
		if ok {
			score, label, reasons = res.Score, res.Label, res.Reasons
		} else {
			s.logger.Warn("model detection failed, falling back to heuristics",
				zap.String("email_id", emailID))
			hr := s.heuristic(email)
			score, label = hr.Score, hr.Label
			reasons = append(hr.Reasons, "AI analysis failed, heuristic fallback used")
		}
	} else {
		hr := s.heuristic(email)
		score, label, reasons = hr.Score, hr.Label, hr.Reasons
	}

	detection := &models.Detection{
		EmailID:   emailID,
		Label:     label,
		RiskScore: score,
		Reasons:   reasons,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.detections.Save(ctx, detection); err != nil {
		return nil, fmt.Errorf("failed to save detection: %w", err)
	}

	s.logger.Info("detection stored",
		zap.String("email_id", emailID),
		zap.String("label", string(label)),
		zap.Int("risk_score", score))

	return detection, nil
}

func (s *Service) heuristic(email *models.Email) heuristics.Result {
	return heuristics.Score(heuristics.Input{
		Subject: email.Subject,
		From:    email.FromAddr,
		To:      email.ToAddr,
		Body:    email.BodyText,
		URLs:    email.ExtractedURLs,
	})
}
