package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/canvas-progress/pkg/canvas"
	"github.com/Sternrassler/canvas-progress/pkg/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	studentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_students_processed_total",
		Help: "Total number of students aggregated by outcome",
	}, []string{"outcome"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_aggregation_duration_seconds",
		Help:    "Duration of a course aggregation in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// DefaultExcludedModule is the syllabus placeholder module left out of every report.
const DefaultExcludedModule = "Programa del Curso"

// CourseAPI is the part of the Canvas API the aggregator needs. *canvas.API implements it.
type CourseAPI interface {
	ListStudents(ctx context.Context, courseID string) ([]canvas.Enrollment, error)
	ListStudentModules(ctx context.Context, courseID string, studentID int64) ([]canvas.Module, error)
}

// StudentOutcome is the result of one student's task: rows, or the failure
// that prevented them.
type StudentOutcome struct {
	Student Student
	Summary []SummaryRow
	Detail  []DetailRow
	Err     error
}

// Failed reports whether the student's modules could not be fetched.
func (o StudentOutcome) Failed() bool {
	return o.Err != nil
}

// StudentFailure records a student left out of a report.
type StudentFailure struct {
	StudentID int64  `json:"student_id"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// Stats describes one aggregation.
type Stats struct {
	StudentsTotal    int              `json:"students_total"`
	StudentsReported int              `json:"students_reported"`
	StudentsFailed   int              `json:"students_failed"`
	Failures         []StudentFailure `json:"failures,omitempty"`
	PeakConcurrency  int              `json:"peak_concurrency"`
	Duration         time.Duration    `json:"duration_ns"`
}

// Rows is the flat output of an aggregation.
type Rows struct {
	Summary []SummaryRow
	Detail  []DetailRow
	Stats   Stats
}

// AggregatorConfig holds aggregator settings.
type AggregatorConfig struct {
	// Concurrency is the number of students fetched at once.
	Concurrency int

	// ExcludedModule is skipped by exact name.
	ExcludedModule string
}

// DefaultAggregatorConfig returns 8 concurrent students and the syllabus exclusion.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Concurrency:    limiter.DefaultSize,
		ExcludedModule: DefaultExcludedModule,
	}
}

// Aggregator fetches every active student's modules and turns them into rows.
type Aggregator struct {
	api    CourseAPI
	config AggregatorConfig
	logger zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(api CourseAPI, cfg AggregatorConfig) *Aggregator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = limiter.DefaultSize
	}
	return &Aggregator{
		api:    api,
		config: cfg,
		logger: log.With().Str("component", "aggregator").Logger(),
	}
}

// Aggregate builds the summary and detail rows of a course. Failing to list
// the students fails the call; a student whose modules cannot be fetched is
// left out and counted in Stats. Rows appear in the order tasks finished,
// module then item order within a student.
func (a *Aggregator) Aggregate(ctx context.Context, courseID string) (*Rows, error) {
	start := time.Now()
	defer func() {
		aggregationDuration.Observe(time.Since(start).Seconds())
	}()

	enrollments, err := a.api.ListStudents(ctx, courseID)
	if err != nil {
		return nil, err
	}

	// a fresh limiter per call keeps the bound per course report
	lim := limiter.NewNamed("students", a.config.Concurrency)

	var (
		mu       sync.Mutex
		finished []StudentOutcome
	)

	students := make([]Student, len(enrollments))
	futures := make([]*limiter.Future[StudentOutcome], len(enrollments))
	for i, e := range enrollments {
		s := StudentFromEnrollment(e)
		students[i] = s
		futures[i] = limiter.Submit(ctx, lim, func(ctx context.Context) (StudentOutcome, error) {
			out := a.student(ctx, courseID, s)
			mu.Lock()
			finished = append(finished, out)
			mu.Unlock()
			return out, nil
		})
	}
	lim.Wait()

	// tasks that never ran or panicked only report through their future
	for i, f := range futures {
		if _, err := f.Wait(); err != nil {
			finished = append(finished, StudentOutcome{Student: students[i], Err: err})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregate course %s: %w", courseID, err)
	}

	rows := &Rows{
		Summary: []SummaryRow{},
		Detail:  []DetailRow{},
		Stats: Stats{
			StudentsTotal:   len(enrollments),
			PeakConcurrency: lim.Peak(),
		},
	}

	for _, out := range finished {
		if out.Failed() {
			rows.Stats.StudentsFailed++
			rows.Stats.Failures = append(rows.Stats.Failures, StudentFailure{
				StudentID: out.Student.ID,
				Reason:    out.Err.Error(),
				Err:       out.Err,
			})
			studentsProcessedTotal.WithLabelValues("failed").Inc()
			continue
		}
		rows.Stats.StudentsReported++
		rows.Summary = append(rows.Summary, out.Summary...)
		rows.Detail = append(rows.Detail, out.Detail...)
		studentsProcessedTotal.WithLabelValues("ok").Inc()
	}
	rows.Stats.Duration = time.Since(start)

	event := a.logger.Info()
	if rows.Stats.StudentsFailed > 0 {
		event = a.logger.Warn()
	}
	event.
		Str("course_id", courseID).
		Int("students", rows.Stats.StudentsTotal).
		Int("failed", rows.Stats.StudentsFailed).
		Int("summary_rows", len(rows.Summary)).
		Int("detail_rows", len(rows.Detail)).
		Int("peak_concurrency", rows.Stats.PeakConcurrency).
		Dur("duration", rows.Stats.Duration).
		Msg("Course aggregated")

	return rows, nil
}

// student fetches one student's modules. Errors are returned in the outcome,
// never to the caller.
func (a *Aggregator) student(ctx context.Context, courseID string, s Student) StudentOutcome {
	modules, err := a.api.ListStudentModules(ctx, courseID, s.ID)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("course_id", courseID).
			Int64("student_id", s.ID).
			Msg("Student left out of report")
		return StudentOutcome{Student: s, Err: err}
	}

	summary, detail := studentRows(s, modules, a.config.ExcludedModule)
	return StudentOutcome{Student: s, Summary: summary, Detail: detail}
}

// StudentRows fetches and converts the modules of a single student.
func (a *Aggregator) StudentRows(ctx context.Context, courseID string, s Student) ([]SummaryRow, []DetailRow, error) {
	modules, err := a.api.ListStudentModules(ctx, courseID, s.ID)
	if err != nil {
		return nil, nil, err
	}
	summary, detail := studentRows(s, modules, a.config.ExcludedModule)
	return summary, detail, nil
}
