package report

import (
	"strconv"
	"strings"
)

// Band groups a completion percentage for display.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// BandFor returns low below 40, medium from 40 to 79 and high from 80.
func BandFor(pct int) Band {
	switch {
	case pct >= 80:
		return BandHigh
	case pct >= 40:
		return BandMedium
	default:
		return BandLow
	}
}

// ModuleProgress is one module of a student's own view.
type ModuleProgress struct {
	ModuleID   int64  `json:"module_id"`
	ModuleName string `json:"module_name"`
	State      string `json:"module_state"`
	Percent    int    `json:"module_pct"`
	Band       Band   `json:"band"`
}

// StudentProgress is a student's view of their own course progress.
type StudentProgress struct {
	Student Student          `json:"student"`
	Modules []ModuleProgress `json:"modules"`
}

// NewStudentProgress keeps the summary rows belonging to s, in order.
func NewStudentProgress(s Student, summary []SummaryRow) *StudentProgress {
	p := &StudentProgress{Student: s, Modules: []ModuleProgress{}}
	for _, row := range summary {
		if row.StudentID != s.ID {
			continue
		}
		p.Modules = append(p.Modules, ModuleProgress{
			ModuleID:   row.ModuleID,
			ModuleName: row.ModuleName,
			State:      row.ModuleState,
			Percent:    row.ModulePct,
			Band:       BandFor(row.ModulePct),
		})
	}
	return p
}

// MatchStudent finds the student whose Canvas id or SIS id equals userID.
func MatchStudent(students []Student, userID string) (Student, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Student{}, false
	}
	for _, s := range students {
		if strconv.FormatInt(s.ID, 10) == userID || (s.SISUserID != "" && s.SISUserID == userID) {
			return s, true
		}
	}
	return Student{}, false
}
