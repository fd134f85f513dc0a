// Package report turns Canvas module completion into course progress reports:
// per-student summary and detail rows, the student × module matrix and its CSV.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/canvas-progress/pkg/cache"
	"github.com/Sternrassler/canvas-progress/pkg/canvas"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var reportsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "progress_reports_generated_total",
	Help: "Total number of course reports generated by kind",
}, []string{"kind"})

var (
	// ErrNotConfigured is returned when no Canvas URL or token is configured.
	ErrNotConfigured = errors.New("canvas access is not configured")

	// ErrStudentNotFound is returned when a user is not an active student of the course.
	ErrStudentNotFound = errors.New("student not found in course")
)

// API is the Canvas surface used by the service. *canvas.API implements it.
type API interface {
	CourseAPI
	GetCourse(ctx context.Context, courseID string) (*canvas.Course, error)
	ListActiveCourses(ctx context.Context) ([]canvas.Course, error)
}

// Report is a generated course report.
type Report struct {
	Summary []SummaryRow `json:"summary"`
	Detail  []DetailRow  `json:"detail"`
	Stats   Stats        `json:"meta"`
}

// CourseDetails is the course header shown above a report.
type CourseDetails struct {
	ID     int64  `json:"id"`
	Name   string `json:"nombre"`
	Code   string `json:"codigo"`
	Format string `json:"formato"`
}

// CourseSummary is one entry of the course picker.
type CourseSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
	Code string `json:"codigo"`
}

// Service generates reports and memoizes their CSV.
type Service struct {
	api        API
	aggregator *Aggregator
	store      cache.Store
	logger     zerolog.Logger
}

// NewService creates a service. A nil api makes every call fail with
// ErrNotConfigured; a nil store uses an in-memory one.
func NewService(api API, store cache.Store, cfg AggregatorConfig) *Service {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	s := &Service{
		api:    api,
		store:  store,
		logger: log.With().Str("component", "report").Logger(),
	}
	if api != nil {
		s.aggregator = NewAggregator(api, cfg)
	}
	return s
}

// Configured reports whether the service can reach Canvas.
func (s *Service) Configured() bool {
	return s.api != nil
}

// Generate builds the summary and detail rows of a course, uncached, and
// applies filter to both.
func (s *Service) Generate(ctx context.Context, courseID string, filter Filter) (*Report, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	rows, err := s.aggregator.Aggregate(ctx, courseID)
	if err != nil {
		return nil, err
	}
	reportsGeneratedTotal.WithLabelValues("rows").Inc()

	return &Report{
		Summary: filter.Summary(rows.Summary),
		Detail:  filter.Detail(rows.Detail),
		Stats:   rows.Stats,
	}, nil
}

// CSV returns the course's progress CSV and whether it came from the cache.
// The first call per course generates and stores it; later calls return the
// stored bytes unchanged, so order only applies to the first generation.
func (s *Service) CSV(ctx context.Context, courseID string, order SortOrder) (*cache.Entry, bool, error) {
	if !s.Configured() {
		return nil, false, ErrNotConfigured
	}

	key := cache.CSVKey(courseID)
	entry, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		s.logger.Debug().
			Str("course_id", courseID).
			Dur("age", entry.Age()).
			Msg("CSV served from cache")
		return entry, true, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Str("course_id", courseID).Msg("Cache read failed, regenerating")
	}

	rows, err := s.aggregator.Aggregate(ctx, courseID)
	if err != nil {
		return nil, false, err
	}

	data, err := RenderCSV(Project(rows.Summary, order))
	if err != nil {
		return nil, false, fmt.Errorf("render csv for course %s: %w", courseID, err)
	}
	reportsGeneratedTotal.WithLabelValues("csv").Inc()

	entry = cache.NewEntry(data)
	if err := s.store.Set(ctx, key, entry); err != nil {
		s.logger.Warn().Err(err).Str("course_id", courseID).Msg("Cache write failed")
	}

	s.logger.Info().
		Str("course_id", courseID).
		Int("bytes", len(data)).
		Int("students_failed", rows.Stats.StudentsFailed).
		Msg("CSV generated")

	return entry, false, nil
}

// StudentProgress returns the module progress of one student, found by
// Canvas id or SIS id among the course's active students.
func (s *Service) StudentProgress(ctx context.Context, courseID, userID string) (*StudentProgress, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	enrollments, err := s.api.ListStudents(ctx, courseID)
	if err != nil {
		return nil, err
	}

	students := make([]Student, len(enrollments))
	for i, e := range enrollments {
		students[i] = StudentFromEnrollment(e)
	}

	student, ok := MatchStudent(students, userID)
	if !ok {
		return nil, fmt.Errorf("%w: user %s in course %s", ErrStudentNotFound, userID, courseID)
	}

	summary, _, err := s.aggregator.StudentRows(ctx, courseID, student)
	if err != nil {
		return nil, err
	}
	return NewStudentProgress(student, summary), nil
}

// Course returns the header details of a course.
func (s *Service) Course(ctx context.Context, courseID string) (*CourseDetails, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	course, err := s.api.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	format := course.CourseFormat
	if format == "" {
		format = "No especificado"
	}
	return &CourseDetails{
		ID:     course.ID,
		Name:   course.Name,
		Code:   course.CourseCode,
		Format: format,
	}, nil
}

// ActiveCourses lists the courses the token owner is actively enrolled in.
func (s *Service) ActiveCourses(ctx context.Context) ([]CourseSummary, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	courses, err := s.api.ListActiveCourses(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CourseSummary, len(courses))
	for i, c := range courses {
		out[i] = CourseSummary{ID: c.ID, Name: c.Name, Code: c.CourseCode}
	}
	return out, nil
}
