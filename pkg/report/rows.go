package report

import (
	"strconv"

	"github.com/Sternrassler/canvas-progress/pkg/canvas"
)

// Student is a student as identified in a report.
type Student struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SISUserID string `json:"sis_user_id"`
}

// StudentFromEnrollment extracts the report identity from an enrollment.
func StudentFromEnrollment(e canvas.Enrollment) Student {
	return Student{ID: e.StudentID(), Name: e.User.Name, SISUserID: e.SISID()}
}

// DisplayID is the institutional id shown in the matrix, the Canvas id when
// the student has no SIS id.
func (s Student) DisplayID() string {
	if s.SISUserID != "" {
		return s.SISUserID
	}
	return strconv.FormatInt(s.ID, 10)
}

// SummaryRow is one (student, module) completion percentage.
type SummaryRow struct {
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	SISUserID   string `json:"sis_user_id"`
	ModuleID    int64  `json:"module_id"`
	ModuleName  string `json:"module_name"`
	ModuleState string `json:"module_state"`
	ModulePct   int    `json:"module_pct"`
}

// DetailRow is one module item as seen by one student. The nullable fields are
// nil when Canvas sent nothing; RequirementType and Completed are nil for items
// without a completion requirement.
type DetailRow struct {
	StudentID       int64   `json:"student_id"`
	StudentName     string  `json:"student_name"`
	SISUserID       string  `json:"sis_user_id"`
	ModuleID        int64   `json:"module_id"`
	ModuleName      string  `json:"module_name"`
	ItemID          int64   `json:"item_id"`
	ItemTitle       string  `json:"item_title"`
	ItemType        string  `json:"item_type"`
	RequirementType *string `json:"requirement_type"`
	Completed       *bool   `json:"completed"`
	DueAt           *string `json:"due_at"`
	HTMLURL         *string `json:"html_url"`
}

// Percent is round(100*completed/required) with halves rounded up, and 0 when
// the module has no requirement-bearing items.
func Percent(completed, required int) int {
	if required <= 0 {
		return 0
	}
	return (200*completed + required) / (2 * required)
}

// studentRows converts the modules one student sees into summary and detail
// rows, module order then item order. Modules named excluded are skipped.
func studentRows(s Student, modules []canvas.Module, excluded string) ([]SummaryRow, []DetailRow) {
	summary := make([]SummaryRow, 0, len(modules))
	var detail []DetailRow

	for _, m := range modules {
		if m.Name == excluded {
			continue
		}

		required, done := 0, 0
		for _, it := range m.Items {
			if !it.HasRequirement() {
				continue
			}
			required++
			if it.Completed() {
				done++
			}
		}

		summary = append(summary, SummaryRow{
			StudentID:   s.ID,
			StudentName: s.Name,
			SISUserID:   s.SISUserID,
			ModuleID:    m.ID,
			ModuleName:  m.Name,
			ModuleState: m.State,
			ModulePct:   Percent(done, required),
		})

		for _, it := range m.Items {
			row := DetailRow{
				StudentID:   s.ID,
				StudentName: s.Name,
				SISUserID:   s.SISUserID,
				ModuleID:    m.ID,
				ModuleName:  m.Name,
				ItemID:      it.ID,
				ItemTitle:   it.Title,
				ItemType:    it.Type,
				DueAt:       nonEmpty(it.DueAt()),
				HTMLURL:     nonEmpty(it.HTMLURL),
			}
			if req := it.CompletionRequirement; req != nil {
				kind := req.Type
				row.RequirementType = nonEmpty(&kind)
				if req.Completed != nil {
					completed := *req.Completed
					row.Completed = &completed
				}
			}
			detail = append(detail, row)
		}
	}

	return summary, detail
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
