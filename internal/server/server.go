// Package server exposes course progress reports over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/canvas-progress/pkg/cache"
	"github.com/Sternrassler/canvas-progress/pkg/metrics"
	"github.com/Sternrassler/canvas-progress/pkg/report"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReportService is what the handlers need. *report.Service implements it.
type ReportService interface {
	Configured() bool
	Generate(ctx context.Context, courseID string, filter report.Filter) (*report.Report, error)
	CSV(ctx context.Context, courseID string, order report.SortOrder) (*cache.Entry, bool, error)
	StudentProgress(ctx context.Context, courseID, userID string) (*report.StudentProgress, error)
	Course(ctx context.Context, courseID string) (*report.CourseDetails, error)
	ActiveCourses(ctx context.Context) ([]report.CourseSummary, error)
}

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Server holds the HTTP handlers.
type Server struct {
	reports ReportService
	checks  map[string]ReadyCheck
	logger  zerolog.Logger
}

// New creates a server. checks are run by /ready next to the Canvas
// configuration check.
func New(reports ReportService, checks map[string]ReadyCheck) *Server {
	return &Server{
		reports: reports,
		checks:  checks,
		logger:  log.With().Str("component", "http").Logger(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(s.logger))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/api/process-report", s.processReport)
	r.GET("/api/student-progress", s.studentProgress)
	r.GET("/report/data", s.reportData)
	r.GET("/course-details", s.courseDetails)
	r.GET("/canvas-courses", s.canvasCourses)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	if !s.reports.Configured() {
		failures["canvas"] = report.ErrNotConfigured.Error()
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "errors": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// status maps service errors to HTTP status codes.
func status(err error) int {
	switch {
	case errors.Is(err, report.ErrStudentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := status(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("course_id", c.Query("course_id")).
			Str("request_id", RequestIDValue(c)).
			Msg("Request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
