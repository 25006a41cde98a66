package renderjob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/render_client"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

type fakeEmailRepo struct {
	email *models.Email
}

func (f *fakeEmailRepo) Save(_ context.Context, _ *models.Email) error { return nil }

func (f *fakeEmailRepo) GetByID(_ context.Context, id string) (*models.Email, error) {
	if f.email == nil || f.email.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.email, nil
}

func (f *fakeEmailRepo) List(_ context.Context, _ int) ([]*models.Email, error) { return nil, nil }

type fakeJobRepo struct {
	jobs        map[string]*models.RenderJob
	transitions []models.JobStatus
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*models.RenderJob{}}
}

func (f *fakeJobRepo) Create(_ context.Context, job *models.RenderJob) error {
	clone := *job
	f.jobs[job.JobID] = &clone
	f.transitions = append(f.transitions, job.Status)
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, jobID string) (*models.RenderJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobRepo) MarkRunning(_ context.Context, jobID string, startedAt time.Time) error {
	job, ok := f.jobs[jobID]
	if !ok || job.Status != models.JobQueued {
		return repository.ErrNotFound
	}
	job.Status = models.JobRunning
	job.StartedAt = &startedAt
	f.transitions = append(f.transitions, job.Status)
	return nil
}

func (f *fakeJobRepo) MarkFinished(_ context.Context, jobID string, status models.JobStatus, errText string, finishedAt time.Time) error {
	job, ok := f.jobs[jobID]
	if !ok || job.Status != models.JobRunning {
		return repository.ErrNotFound
	}
	job.Status = status
	job.Error = errText
	job.FinishedAt = &finishedAt
	f.transitions = append(f.transitions, job.Status)
	return nil
}

type fakeArtifactRepo struct {
	saved []*models.Artifact
	// jobs lets Save record the job's status at registration time.
	jobs         *fakeJobRepo
	statusAtSave []models.JobStatus
}

func (f *fakeArtifactRepo) Save(_ context.Context, a *models.Artifact) error {
	f.saved = append(f.saved, a)
	if f.jobs != nil {
		if job, ok := f.jobs.jobs[a.JobID]; ok {
			f.statusAtSave = append(f.statusAtSave, job.Status)
		}
	}
	return nil
}

func (f *fakeArtifactRepo) ListByJob(_ context.Context, jobID string) ([]*models.Artifact, error) {
	out := []*models.Artifact{}
	for _, a := range f.saved {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArtifactRepo) GetByJobAndName(_ context.Context, jobID, name string) (*models.Artifact, error) {
	for _, a := range f.saved {
		if a.JobID == jobID && a.Name == name {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func testEmail() *models.Email {
	return &models.Email{
		ID: "e1",
		ExtractedURLs: models.StringList{
			"http://evil.test/a",
			"http://evil.test/b",
		},
	}
}

// rendererWriting returns an httptest server that behaves like the sidecar:
// it writes the named manifest files into the job's output directory.
func rendererWriting(t *testing.T, root string, files map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req render_client.RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dir := filepath.Join(root, req.OutSubdir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func newTestManager(t *testing.T, root, rendererURL string) (*Manager, *fakeJobRepo, *fakeArtifactRepo) {
	t.Helper()
	jobs := newFakeJobRepo()
	artifacts := &fakeArtifactRepo{jobs: jobs}
	client := render_client.NewClient(rendererURL, 5*time.Second, zap.NewNop())
	m := NewManager(&fakeEmailRepo{email: testEmail()}, jobs, artifacts, client, root, zap.NewNop())
	return m, jobs, artifacts
}

func TestOpenSafelySuccess(t *testing.T) {
	root := t.TempDir()
	screenshot := []byte("png-bytes")
	srv := rendererWriting(t, root, map[string][]byte{
		"screenshot.png": screenshot,
		"page_text.txt":  []byte("hello"),
	})
	defer srv.Close()

	m, jobs, artifacts := newTestManager(t, root, srv.URL)

	job, returned, err := m.OpenSafely(context.Background(), "e1", 0, false)
	if err != nil {
		t.Fatalf("OpenSafely: %v", err)
	}
	if job.Status != models.JobDone {
		t.Errorf("status = %q, want done", job.Status)
	}
	if len(returned) != 2 {
		t.Fatalf("OpenSafely returned %d artifacts, want 2: %+v", len(returned), returned)
	}

	want := []models.JobStatus{models.JobQueued, models.JobRunning, models.JobDone}
	if len(jobs.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", jobs.transitions, want)
	}
	for i, s := range want {
		if jobs.transitions[i] != s {
			t.Fatalf("transitions = %v, want %v", jobs.transitions, want)
		}
	}

	if len(artifacts.saved) != 2 {
		t.Fatalf("registered %d artifacts, want 2: %+v", len(artifacts.saved), artifacts.saved)
	}
	for i, status := range artifacts.statusAtSave {
		if status != models.JobDone {
			t.Errorf("artifact %d registered while job was %q, want done", i, status)
		}
	}
	sum := sha256.Sum256(screenshot)
	for _, a := range artifacts.saved {
		if a.Name == "screenshot" {
			if a.SHA256 != hex.EncodeToString(sum[:]) {
				t.Errorf("screenshot sha256 = %s, want %s", a.SHA256, hex.EncodeToString(sum[:]))
			}
			if a.SizeBytes != int64(len(screenshot)) {
				t.Errorf("screenshot size = %d, want %d", a.SizeBytes, len(screenshot))
			}
		}
	}
}

func TestOpenSafelyInvalidIndexCreatesNoJob(t *testing.T) {
	root := t.TempDir()
	m, jobs, _ := newTestManager(t, root, "http://unused.test")

	for _, idx := range []int{-1, 2, 100} {
		_, _, err := m.OpenSafely(context.Background(), "e1", idx, false)
		if !errors.Is(err, ErrInvalidLinkIndex) {
			t.Errorf("index %d: err = %v, want ErrInvalidLinkIndex", idx, err)
		}
	}
	if len(jobs.jobs) != 0 {
		t.Errorf("%d jobs created for invalid indexes", len(jobs.jobs))
	}
}

func TestOpenSafelyRendererFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "browser crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	root := t.TempDir()
	m, jobs, artifacts := newTestManager(t, root, srv.URL)

	job, returned, err := m.OpenSafely(context.Background(), "e1", 1, true)
	if err == nil {
		t.Fatal("expected an error from a failing renderer")
	}
	if len(returned) != 0 {
		t.Errorf("failed render returned %d artifacts", len(returned))
	}

	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T, want *RenderError", err)
	}
	if re.JobID == "" || re.JobID != job.JobID {
		t.Errorf("RenderError.JobID = %q, job.JobID = %q", re.JobID, job.JobID)
	}

	stored := jobs.jobs[job.JobID]
	if stored.Status != models.JobFailed {
		t.Errorf("stored status = %q, want failed", stored.Status)
	}
	if stored.Error == "" {
		t.Error("stored job has empty error text")
	}
	if len(artifacts.saved) != 0 {
		t.Errorf("%d artifacts registered for a failed job", len(artifacts.saved))
	}
}

func TestOpenSafelyUnknownEmail(t *testing.T) {
	m, _, _ := newTestManager(t, t.TempDir(), "http://unused.test")
	_, _, err := m.OpenSafely(context.Background(), "missing", 0, false)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactsRequireExistingJob(t *testing.T) {
	m, _, _ := newTestManager(t, t.TempDir(), "http://unused.test")
	if _, err := m.Artifacts(context.Background(), "no-such-job"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactFile(t *testing.T) {
	root := t.TempDir()
	srv := rendererWriting(t, root, map[string][]byte{
		"ioc_report.json": []byte(`{"urls":[]}`),
	})
	defer srv.Close()

	m, _, _ := newTestManager(t, root, srv.URL)
	job, _, err := m.OpenSafely(context.Background(), "e1", 0, false)
	if err != nil {
		t.Fatalf("OpenSafely: %v", err)
	}

	path, mime, err := m.ArtifactFile(context.Background(), job.JobID, "ioc_report")
	if err != nil {
		t.Fatalf("ArtifactFile: %v", err)
	}
	if mime != "application/json" {
		t.Errorf("mime = %q", mime)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("returned path not readable: %v", err)
	}

	// Names outside the manifest never resolve to a path, whatever they
	// contain.
	for _, name := range []string{"../../etc/passwd", "screenshot.png", "..", ""} {
		if _, _, err := m.ArtifactFile(context.Background(), job.JobID, name); !errors.Is(err, ErrUnknownArtifact) {
			t.Errorf("name %q: err = %v, want ErrUnknownArtifact", name, err)
		}
	}

	// Manifest names with no registered row are not found.
	if _, _, err := m.ArtifactFile(context.Background(), job.JobID, "screenshot"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unregistered artifact: err = %v, want ErrNotFound", err)
	}
}
