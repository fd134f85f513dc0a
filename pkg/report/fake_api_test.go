package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/canvas-progress/pkg/canvas"
)

var errNetwork = errors.New("dial tcp: connection reset by peer")

// fakeAPI serves fixtures in memory and records concurrency.
type fakeAPI struct {
	mu          sync.Mutex
	students    []canvas.Enrollment
	modules     map[int64][]canvas.Module
	failing     map[int64]error
	listErr     error
	delay       time.Duration
	calls       []int64
	running     atomic.Int64
	peakRunning atomic.Int64
	course      *canvas.Course
	courses     []canvas.Course
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		modules: make(map[int64][]canvas.Module),
		failing: make(map[int64]error),
	}
}

func (f *fakeAPI) addStudent(id int64, name, sis string, modules ...canvas.Module) {
	f.students = append(f.students, canvas.Enrollment{
		UserID: id,
		Type:   "StudentEnrollment",
		User:   canvas.User{ID: id, Name: name, SISID: sis},
	})
	f.modules[id] = modules
}

func (f *fakeAPI) ListStudents(ctx context.Context, courseID string) ([]canvas.Enrollment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.students, nil
}

func (f *fakeAPI) ListStudentModules(ctx context.Context, courseID string, studentID int64) ([]canvas.Module, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peakRunning.Load()
		if n <= peak || f.peakRunning.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, studentID)
	err := f.failing[studentID]
	modules := f.modules[studentID]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func (f *fakeAPI) GetCourse(ctx context.Context, courseID string) (*canvas.Course, error) {
	if f.course == nil {
		return nil, errors.New("course not found")
	}
	return f.course, nil
}

func (f *fakeAPI) ListActiveCourses(ctx context.Context) ([]canvas.Course, error) {
	return f.courses, nil
}

func boolPtr(b bool) *bool { return &b }

func reqItem(id int64, completed bool) canvas.ModuleItem {
	return canvas.ModuleItem{
		ID:    id,
		Title: "Item",
		Type:  "Assignment",
		CompletionRequirement: &canvas.CompletionRequirement{
			Type:      "must_submit",
			Completed: boolPtr(completed),
		},
	}
}

func plainItem(id int64) canvas.ModuleItem {
	return canvas.ModuleItem{ID: id, Title: "Lectura", Type: "Page"}
}

func module(id int64, name string, items ...canvas.ModuleItem) canvas.Module {
	return canvas.Module{ID: id, Name: name, State: "started", Items: items}
}
