package report

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/canvas-progress/internal/testutil"
	"github.com/Sternrassler/canvas-progress/pkg/cache"
	"github.com/Sternrassler/canvas-progress/pkg/canvas"
	"github.com/Sternrassler/canvas-progress/pkg/client"
	"github.com/Sternrassler/canvas-progress/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCanvasService wires the real client, pagination and API against the mock.
func newCanvasService(t *testing.T, mock *testutil.MockCanvas, store cache.Store) *Service {
	t.Helper()
	c, err := client.New(client.DefaultConfig(mock.URL(), testutil.Token))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	api := canvas.NewAPI(c, c.BaseURL(), pagination.DefaultConfig())
	return NewService(api, store, DefaultAggregatorConfig())
}

func twoStudentCourse(mock *testutil.MockCanvas) {
	mock.SetStudents("42",
		testutil.Student(1, "Ana", "IEST-A"),
		testutil.Student(2, "Beto", "IEST-B"),
	)
	mock.SetModules("42", 1, canvas.Module{ID: 100, Name: "Unidad 1", State: "completed", Items: []canvas.ModuleItem{
		testutil.Item(1, "Tarea 1", "must_submit", true),
		testutil.Item(2, "Tarea 2", "must_submit", true),
	}})
	mock.SetModules("42", 2, canvas.Module{ID: 100, Name: "Unidad 1", State: "unlocked", Items: []canvas.ModuleItem{
		testutil.Item(1, "Tarea 1", "must_submit", false),
		testutil.Item(2, "Tarea 2", "must_submit", false),
	}})
}

func TestService_TwoStudentEndToEnd(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)

	svc := newCanvasService(t, mock, nil)
	ctx := context.Background()

	rep, err := svc.Generate(ctx, "42", Filter{})
	require.NoError(t, err)
	require.Len(t, rep.Summary, 2)
	assert.Len(t, rep.Detail, 4)
	assert.Equal(t, 2, rep.Stats.StudentsReported)

	m := Project(rep.Summary, OrderAsc)
	cell, ok := m.Cell(1, 100)
	require.True(t, ok)
	assert.Equal(t, "100%", cell.String())
	cell, ok = m.Cell(2, 100)
	require.True(t, ok)
	assert.Equal(t, "0%", cell.String())

	entry, cached, err := svc.CSV(ctx, "42", OrderAsc)
	require.NoError(t, err)
	assert.False(t, cached)

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(entry.Data), BOM))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ID IEST", "Nombre", "Módulo 0"},
		{"IEST-A", "Ana", "100%"},
		{"IEST-B", "Beto", "0%"},
	}, records)
}

func TestService_GenerateAppliesFilter(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)

	rep, err := newCanvasService(t, mock, nil).Generate(context.Background(), "42", Filter{Name: "bet"})
	require.NoError(t, err)
	require.Len(t, rep.Summary, 1)
	assert.Equal(t, "Beto", rep.Summary[0].StudentName)
	assert.Len(t, rep.Detail, 2)
}

func TestService_CSVIsStaleAfterFirstGeneration(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)

	svc := newCanvasService(t, mock, cache.NewMemoryStore())
	ctx := context.Background()

	first, cached, err := svc.CSV(ctx, "42", OrderAsc)
	require.NoError(t, err)
	require.False(t, cached)

	// Beto finishes everything upstream
	mock.SetModules("42", 2, canvas.Module{ID: 100, Name: "Unidad 1", Items: []canvas.ModuleItem{
		testutil.Item(1, "Tarea 1", "must_submit", true),
		testutil.Item(2, "Tarea 2", "must_submit", true),
	}})
	mock.Reset()

	second, cached, err := svc.CSV(ctx, "42", OrderDesc)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 0, mock.GetRequestCount(), "cached CSV must not reach Canvas")

	// the uncached rows do see the change
	rep, err := svc.Generate(ctx, "42", Filter{Name: "Beto"})
	require.NoError(t, err)
	require.Len(t, rep.Summary, 1)
	assert.Equal(t, 100, rep.Summary[0].ModulePct)
}

func TestService_CSVFailedStudentLeftOut(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)
	mock.FailStudent(2, 500)

	entry, _, err := newCanvasService(t, mock, nil).CSV(context.Background(), "42", OrderAsc)
	require.NoError(t, err)

	text := string(entry.Data)
	assert.Contains(t, text, "IEST-A")
	assert.NotContains(t, text, "IEST-B")
}

type failingStore struct{}

func (failingStore) Get(context.Context, cache.Key) (*cache.Entry, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, cache.Key, *cache.Entry) error {
	return errors.New("connection refused")
}

func TestService_CSVSurvivesCacheOutage(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)

	entry, cached, err := newCanvasService(t, mock, failingStore{}).CSV(context.Background(), "42", OrderAsc)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Contains(t, string(entry.Data), "Módulo 0")
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(nil, nil, DefaultAggregatorConfig())
	ctx := context.Background()

	assert.False(t, svc.Configured())

	_, err := svc.Generate(ctx, "1", Filter{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = svc.CSV(ctx, "1", OrderAsc)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.StudentProgress(ctx, "1", "2")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Course(ctx, "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.ActiveCourses(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestService_StudentProgress(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	twoStudentCourse(mock)

	svc := newCanvasService(t, mock, nil)
	ctx := context.Background()

	p, err := svc.StudentProgress(ctx, "42", "IEST-A")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Student.Name)
	require.Len(t, p.Modules, 1)
	assert.Equal(t, 100, p.Modules[0].Percent)
	assert.Equal(t, BandHigh, p.Modules[0].Band)

	// only the matched student's modules are fetched
	assert.Equal(t, 1, mock.RequestsTo("/api/v1/courses/42/modules"))

	p, err = svc.StudentProgress(ctx, "42", "2")
	require.NoError(t, err)
	assert.Equal(t, BandLow, p.Modules[0].Band)

	_, err = svc.StudentProgress(ctx, "42", "999")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestService_CourseDetails(t *testing.T) {
	api := newFakeAPI()
	api.course = &canvas.Course{ID: 42, Name: "Historia", CourseCode: "HIS-101"}
	svc := NewService(api, nil, DefaultAggregatorConfig())

	details, err := svc.Course(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, &CourseDetails{ID: 42, Name: "Historia", Code: "HIS-101", Format: "No especificado"}, details)

	api.course.CourseFormat = "blended"
	details, err = svc.Course(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "blended", details.Format)
}

func TestService_ActiveCourses(t *testing.T) {
	api := newFakeAPI()
	api.courses = []canvas.Course{
		{ID: 1, Name: "Historia", CourseCode: "HIS"},
		{ID: 2, Name: "Física", CourseCode: "FIS"},
	}

	courses, err := NewService(api, nil, DefaultAggregatorConfig()).ActiveCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []CourseSummary{
		{ID: 1, Name: "Historia", Code: "HIS"},
		{ID: 2, Name: "Física", Code: "FIS"},
	}, courses)
}
