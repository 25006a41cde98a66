package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/renderjob"
	"github.com/Mananshah237/PhishNet/internal/repository"
)

type JobHandler interface {
	OpenSafely(c *gin.Context)
	GetJobStatus(c *gin.Context)
	ListJobArtifacts(c *gin.Context)
	DownloadArtifact(c *gin.Context)
}

type jobHandler struct {
	manager *renderjob.Manager
	logger  *zap.Logger
}

func NewJobHandler(manager *renderjob.Manager, logger *zap.Logger) JobHandler {
	return &jobHandler{manager: manager, logger: logger}
}

type openSafelyInput struct {
	LinkIndex         int  `json:"link_index"`
	AllowTargetOrigin bool `json:"allow_target_origin"`
}

// OpenSafely opens one of the email's links in the isolated renderer. A
// renderer failure still leaves a failed job behind, so the 502 response
// carries the job id for later inspection.
func (h *jobHandler) OpenSafely(c *gin.Context) {
	var input openSafelyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, artifacts, err := h.manager.OpenSafely(c.Request.Context(), c.Param("id"), input.LinkIndex, input.AllowTargetOrigin)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
		case errors.Is(err, renderjob.ErrInvalidLinkIndex):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			var re *renderjob.RenderError
			if errors.As(err, &re) {
				c.JSON(http.StatusBadGateway, gin.H{
					"error":  "Renderer failed",
					"job_id": re.JobID,
				})
				return
			}
			h.logger.Error("Open-safely failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Open-safely failed"})
		}
		return
	}

	if artifacts == nil {
		artifacts = []*models.Artifact{}
	}
	c.JSON(http.StatusCreated, gin.H{
		"job_id":    job.JobID,
		"email_id":  job.EmailID,
		"status":    job.Status,
		"artifacts": artifacts,
	})
}

func (h *jobHandler) GetJobStatus(c *gin.Context) {
	job, err := h.manager.Status(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *jobHandler) ListJobArtifacts(c *gin.Context) {
	artifacts, err := h.manager.Artifacts(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to list artifacts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list artifacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
}

// DownloadArtifact streams a registered artifact file. The artifact name is
// resolved against a fixed manifest, never against the filesystem, so a
// crafted name cannot escape the job's directory.
func (h *jobHandler) DownloadArtifact(c *gin.Context) {
	path, mime, err := h.manager.ArtifactFile(c.Request.Context(), c.Param("job_id"), c.Param("name"))
	if err != nil {
		switch {
		case errors.Is(err, renderjob.ErrUnknownArtifact):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		default:
			h.logger.Error("Failed to resolve artifact", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve artifact"})
		}
		return
	}

	c.Header("Content-Type", mime)
	c.File(path)
}
