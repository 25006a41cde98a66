package rewriter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

const (
	linkPlaceholder  = "[LINK REMOVED]"
	phonePlaceholder = "[PHONE REMOVED]"
)

var (
	linkPattern = regexp.MustCompile(`(?i)https?://[^\s'"]+`)

	// Candidate phone tokens; each one is validated with libphonenumber
	// before redaction so order numbers and dates survive.
	phoneCandidate = regexp.MustCompile(`\+?[\d][\d\s().-]{6,18}\d`)

	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// Pressure wording stripped from rewritten bodies, matched per whole word.
var urgencyWords = []string{
	"urgent", "urgently", "immediately", "now", "asap",
	"act now", "right away", "final notice", "last chance",
	"within 24 hours",
}

var urgencyPatterns = compileUrgency()

func compileUrgency() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(urgencyWords))
	for _, w := range urgencyWords {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return patterns
}

// Assistant produces a readable rewrite of the message. It is optional; the
// deterministic sanitizer is the safety boundary either way.
type Assistant interface {
	RewriteEmail(ctx context.Context, subject, body string) (string, error)
}

// Service produces safe-to-forward versions of stored emails. Exactly one
// Rewrite row is written per call.
type Service struct {
	emails    repository.EmailRepository
	rewrites  repository.RewriteRepository
	assistant Assistant
	logger    *zap.Logger
}

func NewService(emails repository.EmailRepository, rewrites repository.RewriteRepository,
	assistant Assistant, logger *zap.Logger) *Service {
	return &Service{
		emails:    emails,
		rewrites:  rewrites,
		assistant: assistant,
		logger:    logger,
	}
}

// Rewrite builds and stores the safe version of an email. When the caller
// asks for the assisted path and it works, the assistant's text is used but
// Sanitize runs over it again: the model output is never trusted to have
// removed the links itself.
func (s *Service) Rewrite(ctx context.Context, emailID string, useAI bool) (*models.Rewrite, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load email: %w", err)
	}

	safeBody := Sanitize(email.BodyText)
	usedLLM := false

	if useAI && s.assistant != nil {
		rewritten, err := s.assistant.RewriteEmail(ctx, email.Subject, email.BodyText)
		if err != nil {
			s.logger.Warn("assisted rewrite failed, keeping sanitized original",
				zap.String("email_id", emailID), zap.Error(err))
		} else if strings.TrimSpace(rewritten) != "" {
			safeBody = Sanitize(rewritten)
			usedLLM = true
		}
	}

	rewrite := &models.Rewrite{
		EmailID:     emailID,
		SafeSubject: Sanitize(email.Subject),
		SafeBody:    safeBody,
		UsedLLM:     usedLLM,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.rewrites.Save(ctx, rewrite); err != nil {
		return nil, fmt.Errorf("failed to save rewrite: %w", err)
	}

	return rewrite, nil
}

// Sanitize strips everything actionable from text: links become
// placeholders, valid phone numbers are redacted and pressure wording is
// removed. Idempotent.
func Sanitize(text string) string {
	out := linkPattern.ReplaceAllString(text, linkPlaceholder)
	out = redactPhones(out)
	for _, p := range urgencyPatterns {
		out = p.ReplaceAllString(out, "")
	}
	out = spaceRuns.ReplaceAllString(out, " ")
	out = blankLines.ReplaceAllString(out, "\n\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func redactPhones(text string) string {
	return phoneCandidate.ReplaceAllStringFunc(text, func(candidate string) string {
		num, err := phonenumbers.Parse(candidate, "US")
		if err != nil {
			return candidate
		}
		if !phonenumbers.IsValidNumber(num) {
			return candidate
		}
		return phonePlaceholder
	})
}
