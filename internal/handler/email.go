package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/dedup"
	"github.com/Mananshah237/PhishNet/internal/detector"
	"github.com/Mananshah237/PhishNet/internal/ingest"
	"github.com/Mananshah237/PhishNet/internal/repository"
	"github.com/Mananshah237/PhishNet/internal/rewriter"
)

const defaultListLimit = 50

type EmailHandler interface {
	IngestEmail(c *gin.Context)
	ListEmails(c *gin.Context)
	GetEmail(c *gin.Context)
	DetectEmail(c *gin.Context)
	RewriteEmail(c *gin.Context)
}

type emailHandler struct {
	emailRepo      repository.EmailRepository
	detectionRepo  repository.DetectionRepository
	rewriteRepo    repository.RewriteRepository
	detector       *detector.Service
	rewriter       *rewriter.Service
	dedup          *dedup.Filter
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewEmailHandler(
	emailRepo repository.EmailRepository,
	detectionRepo repository.DetectionRepository,
	rewriteRepo repository.RewriteRepository,
	detectorSvc *detector.Service,
	rewriterSvc *rewriter.Service,
	dedupFilter *dedup.Filter,
	maxUploadBytes int64,
	logger *zap.Logger,
) EmailHandler {
	return &emailHandler{
		emailRepo:      emailRepo,
		detectionRepo:  detectionRepo,
		rewriteRepo:    rewriteRepo,
		detector:       detectorSvc,
		rewriter:       rewriterSvc,
		dedup:          dedupFilter,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// IngestEmail accepts a raw .eml message, either as a multipart "file" field
// or as the request body, parses it and stores it. Re-uploading the same
// bytes within the dedup window returns the previously stored email.
func (h *emailHandler) IngestEmail(c *gin.Context) {
	raw, err := h.readUpload(c)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Message exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		return
	}

	email, err := ingest.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse message"})
		return
	}

	if existingID, fresh := h.dedup.Remember(c.Request.Context(), raw, email.ID); !fresh {
		existing, err := h.emailRepo.GetByID(c.Request.Context(), existingID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"email_id": existing.ID, "duplicate": true})
			return
		}
		// The dedup entry outlived the row. Fall through and store fresh.
		h.logger.Warn("dedup hit without stored email", zap.String("email_id", existingID))
	}

	if err := h.emailRepo.Save(c.Request.Context(), email); err != nil {
		h.logger.Error("Failed to save email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save email"})
		return
	}

	h.logger.Info("email ingested",
		zap.String("email_id", email.ID),
		zap.Int("urls", len(email.ExtractedURLs)))

	c.JSON(http.StatusCreated, gin.H{"email_id": email.ID, "duplicate": false})
}

var errUploadTooLarge = errors.New("upload too large")

func (h *emailHandler) readUpload(c *gin.Context) ([]byte, error) {
	limit := h.maxUploadBytes

	if file, err := c.FormFile("file"); err == nil {
		if file.Size > limit {
			return nil, errUploadTooLarge
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, limit))
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, errUploadTooLarge
	}
	return raw, nil
}

func (h *emailHandler) ListEmails(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	emails, err := h.emailRepo.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list emails", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list emails"})
		return
	}

	items := make([]gin.H, 0, len(emails))
	for _, email := range emails {
		items = append(items, gin.H{
			"id":         email.ID,
			"subject":    email.Subject,
			"from_addr":  email.FromAddr,
			"created_at": email.CreatedAt,
			"url_count":  len(email.ExtractedURLs),
		})
	}
	c.JSON(http.StatusOK, gin.H{"emails": items})
}

// GetEmail returns the stored email with defanged URLs only. The raw HTML
// body and clickable URL list never leave the server through this endpoint.
func (h *emailHandler) GetEmail(c *gin.Context) {
	email, err := h.emailRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
			return
		}
		h.logger.Error("Failed to get email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get email"})
		return
	}

	resp := gin.H{
		"id":            email.ID,
		"source":        email.Source,
		"subject":       email.Subject,
		"from_addr":     email.FromAddr,
		"to_addr":       email.ToAddr,
		"date_hdr":      email.DateHdr,
		"body_text":     email.BodyText,
		"defanged_urls": email.DefangedURLs,
		"created_at":    email.CreatedAt,
	}

	if detection, err := h.detectionRepo.LatestByEmail(c.Request.Context(), email.ID); err == nil {
		resp["detection"] = detection
	}
	if rewrite, err := h.rewriteRepo.LatestByEmail(c.Request.Context(), email.ID); err == nil {
		resp["rewrite"] = rewrite
	}

	c.JSON(http.StatusOK, resp)
}

func (h *emailHandler) DetectEmail(c *gin.Context) {
	useAI, err := boolQuery(c, "use_ai")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid use_ai value"})
		return
	}

	detection, err := h.detector.Detect(c.Request.Context(), c.Param("id"), useAI)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
			return
		}
		h.logger.Error("Detection failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Detection failed"})
		return
	}

	c.JSON(http.StatusOK, detection)
}

func (h *emailHandler) RewriteEmail(c *gin.Context) {
	useLLM, err := boolQuery(c, "use_llm")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid use_llm value"})
		return
	}

	rewrite, err := h.rewriter.Rewrite(c.Request.Context(), c.Param("id"), useLLM)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
			return
		}
		h.logger.Error("Rewrite failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rewrite failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email_id":     rewrite.EmailID,
		"safe_subject": rewrite.SafeSubject,
		"safe_body":    rewrite.SafeBody,
		"used_llm":     rewrite.UsedLLM,
	})
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
