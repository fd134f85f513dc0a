// Package testutil provides a fake Canvas REST server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/canvas-progress/pkg/canvas"
)

// Token is the bearer token the mock accepts.
const Token = "test-token"

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCanvas is a configurable Canvas server. Enrollments, modules and courses
// are served from fixtures with Link header pagination.
type MockCanvas struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	enrollments map[string][]canvas.Enrollment
	modules     map[string]map[int64][]canvas.Module
	courses     map[string]canvas.Course
	failures    map[int64]int

	// MaxPageSize caps per_page so small fixtures still span several pages.
	// 0 honours the requested size.
	MaxPageSize int

	// ModuleDelay is applied to every module listing request.
	ModuleDelay time.Duration

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requestsByPath    map[string]int
	inFlight          int
	peakInFlight      int
}

// NewMockCanvas creates and starts a mock Canvas server.
func NewMockCanvas() *MockCanvas {
	mock := &MockCanvas{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		enrollments:    make(map[string][]canvas.Enrollment),
		modules:        make(map[string]map[int64][]canvas.Module),
		courses:        make(map[string]canvas.Course),
		failures:       make(map[int64]int),
		requestsByPath: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.requestsByPath[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"errors": []map[string]string{{"message": "Invalid access token."}},
			})
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.route(w, r)
	}))

	return mock
}

// URL returns the platform URL (without /api/v1).
func (m *MockCanvas) URL() string {
	return m.server.URL
}

// APIBase returns the absolute REST prefix of the mock.
func (m *MockCanvas) APIBase() string {
	return m.server.URL + "/api/v1"
}

// Close shuts down the mock server.
func (m *MockCanvas) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCanvas) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requestsByPath = make(map[string]int)
	m.peakInFlight = 0
}

// SetHandler sets a custom handler for a specific path, overriding fixtures.
func (m *MockCanvas) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCanvas) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetStudents sets the active student enrollments of a course.
func (m *MockCanvas) SetStudents(courseID string, enrollments ...canvas.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[courseID] = enrollments
}

// SetModules sets the modules a student sees in a course.
func (m *MockCanvas) SetModules(courseID string, studentID int64, modules ...canvas.Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modules[courseID] == nil {
		m.modules[courseID] = make(map[int64][]canvas.Module)
	}
	m.modules[courseID][studentID] = modules
}

// SetCourse registers a course for /courses/:id and /courses.
func (m *MockCanvas) SetCourse(course canvas.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[strconv.FormatInt(course.ID, 10)] = course
}

// FailStudent makes every module listing for the student answer with status.
func (m *MockCanvas) FailStudent(studentID int64, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[studentID] = status
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCanvas) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsTo returns the number of requests made to an exact path.
func (m *MockCanvas) RequestsTo(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsByPath[path]
}

// PeakModuleRequests returns the highest number of module listings served at once.
func (m *MockCanvas) PeakModuleRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakInFlight
}

// route serves /api/v1/courses, /api/v1/courses/:id and its enrollments and modules.
func (m *MockCanvas) route(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Rate-Limit-Remaining", "700.0")
	w.Header().Set("X-Request-Cost", "1.0")

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1"), "/"), "/")
	if len(parts) == 0 || parts[0] != "courses" {
		notFound(w)
		return
	}

	switch len(parts) {
	case 1:
		m.mu.RLock()
		courses := make([]canvas.Course, 0, len(m.courses))
		for _, c := range m.courses {
			courses = append(courses, c)
		}
		m.mu.RUnlock()
		sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
		paginate(w, r, courses, m.pageSize(r))
	case 2:
		m.mu.RLock()
		course, ok := m.courses[parts[1]]
		m.mu.RUnlock()
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case 3:
		switch parts[2] {
		case "enrollments":
			m.mu.RLock()
			enrollments, ok := m.enrollments[parts[1]]
			m.mu.RUnlock()
			if !ok {
				notFound(w)
				return
			}
			paginate(w, r, enrollments, m.pageSize(r))
		case "modules":
			m.serveModules(w, r, parts[1])
		default:
			notFound(w)
		}
	default:
		notFound(w)
	}
}

func (m *MockCanvas) serveModules(w http.ResponseWriter, r *http.Request, courseID string) {
	studentID, _ := strconv.ParseInt(r.URL.Query().Get("student_id"), 10, 64)

	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	status, failing := m.failures[studentID]
	modules := m.modules[courseID][studentID]
	delay := m.ModuleDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failing {
		writeJSON(w, status, map[string]any{
			"errors": []map[string]string{{"message": "injected failure"}},
		})
		return
	}

	if modules == nil {
		modules = []canvas.Module{}
	}
	paginate(w, r, modules, m.pageSize(r))
}

func (m *MockCanvas) pageSize(r *http.Request) int {
	size, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || size <= 0 {
		size = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MaxPageSize > 0 && size > m.MaxPageSize {
		size = m.MaxPageSize
	}
	return size
}

// paginate writes one page of items and a Link header the way Canvas does:
// absolute URLs carrying the original query plus page.
func paginate[T any](w http.ResponseWriter, r *http.Request, items []T, size int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	links := []string{fmt.Sprintf(`<%s>; rel="current"`, pageURL(r, page))}
	if end < len(items) {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, pageURL(r, page+1)))
	}
	links = append(links, fmt.Sprintf(`<%s>; rel="first"`, pageURL(r, 1)))
	w.Header().Set("Link", strings.Join(links, ","))

	writeJSON(w, http.StatusOK, items[start:end])
}

func pageURL(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"errors": []map[string]string{{"message": "The specified resource does not exist."}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewRateLimitResponse creates Canvas's throttling answer: 403 with an empty bucket.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       "403 Forbidden (Rate Limit Exceeded)",
		Headers: map[string]string{
			"X-Rate-Limit-Remaining": "0.0",
			"Content-Type":           "text/plain; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"message":"An error occurred."}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// Bool returns a pointer to b, for completion fixtures.
func Bool(b bool) *bool { return &b }

// Item builds a module item. requirement "" means the item has no requirement.
func Item(id int64, title, requirement string, completed bool) canvas.ModuleItem {
	item := canvas.ModuleItem{ID: id, Title: title, Type: "Assignment"}
	if requirement != "" {
		item.CompletionRequirement = &canvas.CompletionRequirement{
			Type:      requirement,
			Completed: Bool(completed),
		}
	}
	return item
}

// Student builds an active student enrollment.
func Student(id int64, name, sis string) canvas.Enrollment {
	return canvas.Enrollment{
		ID:     id * 10,
		UserID: id,
		Type:   "StudentEnrollment",
		State:  "active",
		User:   canvas.User{ID: id, Name: name, SISID: sis},
	}
}
