package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/handler"
)

// Deps are the wired handlers the router exposes.
type Deps struct {
	Emails handler.EmailHandler
	Jobs   handler.JobHandler
}

type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		logger: logger,
	}
	s.setupRoutes(deps)

	return s
}

func (s *Server) setupRoutes(deps Deps) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	s.router.POST("/ingest/upload-eml", deps.Emails.IngestEmail)

	emails := s.router.Group("/emails")
	{
		emails.GET("", deps.Emails.ListEmails)
		emails.GET("/:id", deps.Emails.GetEmail)
		emails.POST("/:id/detect", deps.Emails.DetectEmail)
		emails.POST("/:id/rewrite", deps.Emails.RewriteEmail)
		emails.POST("/:id/open-safely", deps.Jobs.OpenSafely)
	}

	jobs := s.router.Group("/jobs")
	{
		jobs.GET("/:job_id", deps.Jobs.GetJobStatus)
		jobs.GET("/:job_id/artifacts", deps.Jobs.ListJobArtifacts)
		jobs.GET("/:job_id/artifacts/:name/download", deps.Jobs.DownloadArtifact)
	}
}

func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
