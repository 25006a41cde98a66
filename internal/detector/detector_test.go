package detector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/ai_engine"
	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

type fakeEmailRepo struct {
	emails map[string]*models.Email
}

func (f *fakeEmailRepo) Save(_ context.Context, email *models.Email) error {
	f.emails[email.ID] = email
	return nil
}

func (f *fakeEmailRepo) GetByID(_ context.Context, id string) (*models.Email, error) {
	email, ok := f.emails[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return email, nil
}

func (f *fakeEmailRepo) List(_ context.Context, _ int) ([]*models.Email, error) {
	out := make([]*models.Email, 0, len(f.emails))
	for _, e := range f.emails {
		out = append(out, e)
	}
	return out, nil
}

type fakeDetectionRepo struct {
	saved []*models.Detection
}

func (f *fakeDetectionRepo) Save(_ context.Context, d *models.Detection) error {
	f.saved = append(f.saved, d)
	return nil
}

func (f *fakeDetectionRepo) LatestByEmail(_ context.Context, emailID string) (*models.Detection, error) {
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].EmailID == emailID {
			return f.saved[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeClassifier struct {
	result ai_engine.DetectionResult
	ok     bool
	calls  int
}

func (f *fakeClassifier) DetectEmail(_ context.Context, _, _, _ string, _ []string) (ai_engine.DetectionResult, bool) {
	f.calls++
	return f.result, f.ok
}

func phishyEmail() *models.Email {
	return &models.Email{
		ID:       "e1",
		Subject:  "Account suspended, verify immediately",
		FromAddr: "security@paypa1-support.top",
		ToAddr:   "victim@example.com",
		BodyText: "Your account has been suspended. Confirm your password at http://198.51.100.7/login",
		ExtractedURLs: models.StringList{
			"http://198.51.100.7/login",
		},
	}
}

func newTestService(emails *fakeEmailRepo, detections *fakeDetectionRepo, cls Classifier) *Service {
	return NewService(emails, detections, cls, zap.NewNop())
}

func TestDetectUnknownEmail(t *testing.T) {
	svc := newTestService(&fakeEmailRepo{emails: map[string]*models.Email{}}, &fakeDetectionRepo{}, nil)

	_, err := svc.Detect(context.Background(), "missing", false)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetectHeuristicPath(t *testing.T) {
	emails := &fakeEmailRepo{emails: map[string]*models.Email{"e1": phishyEmail()}}
	detections := &fakeDetectionRepo{}
	cls := &fakeClassifier{}
	svc := newTestService(emails, detections, cls)

	det, err := svc.Detect(context.Background(), "e1", false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if cls.calls != 0 {
		t.Errorf("classifier called %d times on heuristic path", cls.calls)
	}
	if det.Label != models.LabelPhishing {
		t.Errorf("label = %q, want phishing", det.Label)
	}
	if det.RiskScore < 60 {
		t.Errorf("risk score = %d, want >= 60", det.RiskScore)
	}
	if len(detections.saved) != 1 {
		t.Fatalf("stored %d detections, want exactly 1", len(detections.saved))
	}
}

func TestDetectAIPath(t *testing.T) {
	emails := &fakeEmailRepo{emails: map[string]*models.Email{"e1": phishyEmail()}}
	detections := &fakeDetectionRepo{}
	cls := &fakeClassifier{
		result: ai_engine.DetectionResult{
			Label:   models.LabelPhishing,
			Score:   85,
			Reasons: []string{"credential harvesting language"},
		},
		ok: true,
	}
	svc := newTestService(emails, detections, cls)

	det, err := svc.Detect(context.Background(), "e1", true)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if cls.calls != 1 {
		t.Errorf("classifier called %d times, want 1", cls.calls)
	}
	if det.RiskScore != 85 || det.Label != models.LabelPhishing {
		t.Errorf("got %d/%s, want 85/phishing", det.RiskScore, det.Label)
	}
	if len(detections.saved) != 1 {
		t.Fatalf("stored %d detections, want exactly 1", len(detections.saved))
	}
}

func TestDetectAIFailureFallsBack(t *testing.T) {
	emails := &fakeEmailRepo{emails: map[string]*models.Email{"e1": phishyEmail()}}
	detections := &fakeDetectionRepo{}
	cls := &fakeClassifier{result: ai_engine.FailureResult("model unreachable"), ok: false}
	svc := newTestService(emails, detections, cls)

	det, err := svc.Detect(context.Background(), "e1", true)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.Label != models.LabelPhishing {
		t.Errorf("fallback label = %q, want heuristic phishing verdict", det.Label)
	}

	var noted bool
	for _, r := range det.Reasons {
		if strings.Contains(r, "AI analysis failed") {
			noted = true
		}
	}
	if !noted {
		t.Errorf("fallback note missing from reasons: %v", det.Reasons)
	}
	if len(detections.saved) != 1 {
		t.Fatalf("stored %d detections, want exactly 1", len(detections.saved))
	}
}

func TestDetectWithoutClassifierIgnoresUseAI(t *testing.T) {
	emails := &fakeEmailRepo{emails: map[string]*models.Email{"e1": phishyEmail()}}
	detections := &fakeDetectionRepo{}
	svc := newTestService(emails, detections, nil)

	det, err := svc.Detect(context.Background(), "e1", true)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.Label != models.LabelPhishing {
		t.Errorf("label = %q, want phishing from heuristics", det.Label)
	}
}
