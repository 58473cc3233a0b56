// Package server exposes the operator admin API over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/orchestrator"
)

type CycleRunner interface {
	TriggerManualRun(ctx context.Context) (orchestrator.CycleSummary, error)
	Last() (orchestrator.CycleSummary, bool)
}

type SourceAdmin interface {
	Upsert(ctx context.Context, kind constants.SourceKind, locator, name string, enabled bool) (*entity.Source, error)
	List(ctx context.Context) ([]entity.Source, error)
}

type RecordAdmin interface {
	Get(ctx context.Context, id string) (*entity.CastingCallRecord, error)
	List(ctx context.Context, status constants.RecordStatus, limit int) ([]entity.CastingCallRecord, error)
	UpdateStatus(ctx context.Context, id string, status constants.RecordStatus) error
	Count(ctx context.Context) (int, error)
}

type DeadLetterAdmin interface {
	List(ctx context.Context, limit int) ([]entity.DeadLetter, error)
	Get(ctx context.Context, id string) (*entity.DeadLetter, error)
	Count(ctx context.Context) (int, error)
	Requeue(ctx context.Context, id string) (string, error)
}

type QueueDepths interface {
	Depth(ctx context.Context, queue string) (int, error)
}

type OutboxCounts interface {
	Counts(ctx context.Context) (map[constants.OutboxStatus]int, error)
}

type Exporter interface {
	RecordsXLSX(ctx context.Context, status constants.RecordStatus, limit int) ([]byte, error)
	DeadLettersXLSX(ctx context.Context, limit int) ([]byte, error)
}

type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Deps are the services behind the admin API.
type Deps struct {
	Cycles      CycleRunner
	Sources     SourceAdmin
	Records     RecordAdmin
	DeadLetters DeadLetterAdmin
	Jobs        QueueDepths
	Outbox      OutboxCounts
	Exports     Exporter
	DB          Pinger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/cycles", s.handleTriggerCycle)
	v1.GET("/cycles/last", s.handleLastCycle)

	v1.GET("/sources", s.handleListSources)
	v1.POST("/sources", s.handleRegisterSource)

	v1.GET("/records", s.handleListRecords)
	v1.GET("/records/:id", s.handleGetRecord)
	v1.POST("/records/:id/status", s.handleSetRecordStatus)

	v1.GET("/dead-letters", s.handleListDeadLetters)
	v1.GET("/dead-letters/:id", s.handleGetDeadLetter)
	v1.POST("/dead-letters/:id/requeue", s.handleRequeueDeadLetter)

	v1.GET("/stats", s.handleStats)

	v1.GET("/exports/dead-letters.xlsx", s.handleExportDeadLetters)
	v1.GET("/exports/records.xlsx", s.handleExportRecords)
	return r
}

// Run serves until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("admin http shutdown", "error", err)
		return err
	}
	s.logger.Info("admin http stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		log := s.logger.With("req_id", reqID)
		ctx := common.WithLogger(common.WithRequestID(c.Request.Context(), reqID), log)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)

		start := time.Now()
		c.Next()
		log.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) log(c *gin.Context) *slog.Logger {
	return common.LoggerFromContext(c.Request.Context(), s.logger)
}

// fail maps err onto a status code and a JSON error body.
func (s *Server) fail(c *gin.Context, op string, err error) {
	code := common.HTTPStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log(c).Error(op+".failed", "error", err)
		msg = "internal error"
	} else {
		s.log(c).Warn(op+".rejected", "status", code, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{
		"error":  msg,
		"req_id": common.RequestIDFromContext(c.Request.Context()),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(c.Request.Context(), 2*time.Second); err != nil {
			s.log(c).Warn("health.db_unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
