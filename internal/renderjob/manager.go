package renderjob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/render_client"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

// ErrInvalidLinkIndex is returned when the requested link index is outside
// the email's extracted URL list. No job row exists in that case.
var ErrInvalidLinkIndex = errors.New("link index out of range")

// ErrUnknownArtifact is returned for artifact names outside the manifest.
var ErrUnknownArtifact = errors.New("unknown artifact name")

// RenderError wraps a renderer failure together with the job that recorded
// it, so callers can surface the job id alongside the upstream error.
type RenderError struct {
	JobID string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render job %s failed: %v", e.JobID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// artifactManifest is the closed set of files a render may produce. Names
// outside this table are never read from or written to disk on behalf of a
// caller, which keeps download paths traversal-safe by construction.
var artifactManifest = []struct {
	name     string
	filename string
	mime     string
}{
	{"screenshot", "screenshot.png", "image/png"},
	{"screenshot_full", "screenshot_full.png", "image/png"},
	{"ioc_report", "ioc_report.json", "application/json"},
	{"page_text", "page_text.txt", "text/plain; charset=utf-8"},
	{"metadata", "metadata.json", "application/json"},
}

// Renderer dispatches one isolated page load.
type Renderer interface {
	Render(ctx context.Context, req render_client.RenderRequest) error
}

// Manager drives the sandboxed-open lifecycle: it creates the job row,
// walks it queued -> running -> done|failed and registers whichever
// manifest files the renderer actually produced.
type Manager struct {
	emails    repository.EmailRepository
	jobs      repository.JobRepository
	artifacts repository.ArtifactRepository
	renderer  Renderer
	root      string
	logger    *zap.Logger
}

func NewManager(emails repository.EmailRepository, jobs repository.JobRepository,
	artifacts repository.ArtifactRepository, renderer Renderer, artifactRoot string,
	logger *zap.Logger) *Manager {
	return &Manager{
		emails:    emails,
		jobs:      jobs,
		artifacts: artifacts,
		renderer:  renderer,
		root:      artifactRoot,
		logger:    logger,
	}
}

// OpenSafely opens the email's linkIndex-th extracted URL in the isolated
// renderer. The link index is validated before any state is created, so an
// out-of-range request leaves no job behind. The returned job is terminal
// and the artifacts are whatever the render produced; a renderer failure is
// reported as a *RenderError carrying the job id.
func (m *Manager) OpenSafely(ctx context.Context, emailID string, linkIndex int, allowTargetOrigin bool) (*models.RenderJob, []*models.Artifact, error) {
	email, err := m.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load email: %w", err)
	}
	if linkIndex < 0 || linkIndex >= len(email.ExtractedURLs) {
		return nil, nil, fmt.Errorf("%w: index %d, email has %d links",
			ErrInvalidLinkIndex, linkIndex, len(email.ExtractedURLs))
	}
	targetURL := email.ExtractedURLs[linkIndex]

	job := &models.RenderJob{
		JobID:             uuid.New().String(),
		EmailID:           emailID,
		TargetURL:         targetURL,
		AllowTargetOrigin: allowTargetOrigin,
		Status:            models.JobQueued,
		CreatedAt:         time.Now().UTC(),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("failed to create render job: %w", err)
	}

	startedAt := time.Now().UTC()
	if err := m.jobs.MarkRunning(ctx, job.JobID, startedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to start render job: %w", err)
	}
	job.Status = models.JobRunning
	job.StartedAt = &startedAt

	m.logger.Info("render job started",
		zap.String("job_id", job.JobID),
		zap.String("email_id", emailID),
		zap.Int("link_index", linkIndex))

	renderErr := m.renderer.Render(ctx, render_client.RenderRequest{
		URL:               targetURL,
		Job:               job.JobID,
		OutSubdir:         filepath.Join("renders", job.JobID),
		AllowTargetOrigin: allowTargetOrigin,
	})

	finishedAt := time.Now().UTC()
	job.FinishedAt = &finishedAt

	if renderErr != nil {
		job.Status = models.JobFailed
		job.Error = renderErr.Error()
		if err := m.jobs.MarkFinished(ctx, job.JobID, models.JobFailed, job.Error, finishedAt); err != nil {
			m.logger.Error("failed to record job failure",
				zap.String("job_id", job.JobID), zap.Error(err))
		}
		return job, nil, &RenderError{JobID: job.JobID, Err: renderErr}
	}

	// The terminal state lands first; artifact rows only ever hang off a
	// finished job.
	job.Status = models.JobDone
	if err := m.jobs.MarkFinished(ctx, job.JobID, models.JobDone, "", finishedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to finish render job: %w", err)
	}

	artifacts, err := m.registerArtifacts(ctx, job.JobID)
	if err != nil {
		m.logger.Error("artifact registration incomplete",
			zap.String("job_id", job.JobID), zap.Error(err))
	}

	m.logger.Info("render job done",
		zap.String("job_id", job.JobID),
		zap.Int("artifacts", len(artifacts)))
	return job, artifacts, nil
}

// registerArtifacts scans the job's output directory against the manifest
// and stores a row per file found. Missing files are simply skipped: the
// renderer produces what the page allowed it to.
func (m *Manager) registerArtifacts(ctx context.Context, jobID string) ([]*models.Artifact, error) {
	registered := []*models.Artifact{}
	var firstErr error
	for _, entry := range artifactManifest {
		relPath := filepath.Join("renders", jobID, entry.filename)
		absPath := filepath.Join(m.root, relPath)

		info, err := os.Stat(absPath)
		if err != nil {
			continue
		}
		sum, err := fileSHA256(absPath)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		artifact := &models.Artifact{
			JobID:     jobID,
			Name:      entry.name,
			RelPath:   relPath,
			SHA256:    sum,
			MIME:      entry.mime,
			SizeBytes: info.Size(),
			CreatedAt: time.Now().UTC(),
		}
		if err := m.artifacts.Save(ctx, artifact); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		registered = append(registered, artifact)
	}
	return registered, firstErr
}

// Status returns the job row as stored.
func (m *Manager) Status(ctx context.Context, jobID string) (*models.RenderJob, error) {
	return m.jobs.GetByID(ctx, jobID)
}

// Artifacts lists the registered artifacts of a job. The job must exist
// even when it produced nothing.
func (m *Manager) Artifacts(ctx context.Context, jobID string) ([]*models.Artifact, error) {
	if _, err := m.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return m.artifacts.ListByJob(ctx, jobID)
}

// ArtifactFile resolves a download request to an on-disk path and MIME
// type. The path is rebuilt from the manifest table and the job id, never
// from stored or user-supplied strings.
func (m *Manager) ArtifactFile(ctx context.Context, jobID, name string) (string, string, error) {
	var filename, mime string
	for _, entry := range artifactManifest {
		if entry.name == name {
			filename, mime = entry.filename, entry.mime
			break
		}
	}
	if filename == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownArtifact, name)
	}

	if _, err := m.artifacts.GetByJobAndName(ctx, jobID, name); err != nil {
		return "", "", err
	}

	absPath := filepath.Join(m.root, "renders", jobID, filename)
	if _, err := os.Stat(absPath); err != nil {
		return "", "", fmt.Errorf("artifact file missing: %w", repository.ErrNotFound)
	}
	return absPath, mime, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
