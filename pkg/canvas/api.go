package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/canvas-progress/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API wraps the Canvas endpoints the report needs. It is safe for concurrent use.
type API struct {
	getter  pagination.Getter
	fetcher *pagination.Fetcher
	logger  zerolog.Logger
}

// NewAPI builds an API on top of a Getter (normally *client.Client). apiBase is
// the absolute REST prefix stripped from pagination links.
func NewAPI(getter pagination.Getter, apiBase string, cfg pagination.Config) *API {
	return &API{
		getter:  getter,
		fetcher: pagination.NewFetcher(getter, apiBase, cfg),
		logger:  log.With().Str("component", "canvas-api").Logger(),
	}
}

// ListStudents returns the active student enrollments of a course, every page.
func (a *API) ListStudents(ctx context.Context, courseID string) ([]Enrollment, error) {
	params := url.Values{}
	params.Set("type[]", "StudentEnrollment")
	params.Set("state[]", "active")

	enrollments, err := pagination.FetchAll[Enrollment](ctx, a.fetcher, coursePath(courseID, "enrollments"), params)
	if err != nil {
		return nil, fmt.Errorf("list students of course %s: %w", courseID, err)
	}

	a.logger.Debug().
		Str("course_id", courseID).
		Int("students", len(enrollments)).
		Msg("Listed active students")

	return enrollments, nil
}

// ListStudentModules returns the modules of a course with their items and
// completion state as seen by one student.
func (a *API) ListStudentModules(ctx context.Context, courseID string, studentID int64) ([]Module, error) {
	params := url.Values{}
	params.Add("include[]", "items")
	params.Add("include[]", "content_details")
	params.Set("student_id", strconv.FormatInt(studentID, 10))

	modules, err := pagination.FetchAll[Module](ctx, a.fetcher, coursePath(courseID, "modules"), params)
	if err != nil {
		return nil, fmt.Errorf("list modules of course %s for student %d: %w", courseID, studentID, err)
	}
	return modules, nil
}

// GetCourse returns a single course.
func (a *API) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	resp, err := a.getter.Get(ctx, coursePath(courseID, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", courseID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get course %s: unexpected status %d", courseID, resp.StatusCode)
	}

	var course Course
	if err := json.NewDecoder(resp.Body).Decode(&course); err != nil {
		return nil, fmt.Errorf("decode course %s: %w", courseID, err)
	}
	return &course, nil
}

// ListActiveCourses returns the courses the token owner is actively enrolled in.
func (a *API) ListActiveCourses(ctx context.Context) ([]Course, error) {
	params := url.Values{}
	params.Set("enrollment_state", "active")
	params.Add("include[]", "term")

	courses, err := pagination.FetchAll[Course](ctx, a.fetcher, "/courses", params)
	if err != nil {
		return nil, fmt.Errorf("list active courses: %w", err)
	}
	return courses, nil
}

func coursePath(courseID, resource string) string {
	p := "/courses/" + url.PathEscape(courseID)
	if resource != "" {
		p += "/" + resource
	}
	return p
}
