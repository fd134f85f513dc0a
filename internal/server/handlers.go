package server

import (
	"net/http"
	"strings"

	"github.com/Sternrassler/canvas-progress/pkg/cache"
	"github.com/Sternrassler/canvas-progress/pkg/report"
	"github.com/gin-gonic/gin"
)

// CSVFilename is the attachment name of the progress CSV.
const CSVFilename = "progreso.csv"

func courseID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Query("course_id"))
	if id == "" {
		badRequest(c, "missing course_id")
		return "", false
	}
	return id, true
}

// processReport answers GET /api/process-report?course_id=ID[&name=..][&module=..].
func (s *Server) processReport(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}

	filter := report.Filter{Name: c.Query("name"), Module: c.Query("module")}
	rep, err := s.reports.Generate(c.Request.Context(), id, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// reportData answers GET /report/data?course_id=ID&kind=csv[&order=asc|desc].
func (s *Server) reportData(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	if kind := c.Query("kind"); kind != "csv" {
		badRequest(c, "only kind=csv is supported")
		return
	}
	order, err := report.ParseSortOrder(c.Query("order"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, cached, err := s.reports.CSV(c.Request.Context(), id, order)
	if err != nil {
		s.fail(c, err)
		return
	}

	cacheStatus := "MISS"
	if cached {
		cacheStatus = "HIT"
	}
	c.Header("X-Cache", cacheStatus)
	c.Header("X-Report-Generated-At", entry.GeneratedAt.UTC().Format(http.TimeFormat))
	c.Header("Content-Disposition", `attachment; filename="`+CSVFilename+`"`)
	contentType := entry.ContentType
	if contentType == "" {
		contentType = cache.ContentTypeCSV
	}
	c.Data(http.StatusOK, contentType, entry.Data)
}

// studentProgress answers GET /api/student-progress?course_id=ID&user_id=UID.
func (s *Server) studentProgress(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		badRequest(c, "missing user_id")
		return
	}

	progress, err := s.reports.StudentProgress(c.Request.Context(), id, userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// courseDetails answers GET /course-details?course_id=ID.
func (s *Server) courseDetails(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}

	details, err := s.reports.Course(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// canvasCourses answers GET /canvas-courses.
func (s *Server) canvasCourses(c *gin.Context) {
	courses, err := s.reports.ActiveCourses(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", RequestIDValue(c)).Msg("Listing courses failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(courses), "cursos": courses})
}
