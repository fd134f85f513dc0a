package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ModuleLabeler hands out short labels "Módulo 0", "Módulo 1", ... in the
// order modules are first seen. Labels are only meaningful within one projection.
type ModuleLabeler struct {
	labels map[int64]string
	next   int
}

// NewModuleLabeler returns a labeler starting at "Módulo 0".
func NewModuleLabeler() *ModuleLabeler {
	return &ModuleLabeler{labels: make(map[int64]string)}
}

// Label returns the label of a module, assigning the next one on first sight.
func (l *ModuleLabeler) Label(moduleID int64) (label string, isNew bool) {
	if label, ok := l.labels[moduleID]; ok {
		return label, false
	}
	label = fmt.Sprintf("Módulo %d", l.next)
	l.next++
	l.labels[moduleID] = label
	return label, true
}

// Len returns the number of labels handed out.
func (l *ModuleLabeler) Len() int {
	return l.next
}

// SortOrder orders students by institutional id.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ParseSortOrder accepts "", "asc" and "desc"; "" means ascending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", OrderAsc:
		return OrderAsc, nil
	case OrderDesc:
		return OrderDesc, nil
	default:
		return "", fmt.Errorf("unsupported order %q", s)
	}
}

// ModuleColumn is one matrix column.
type ModuleColumn struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"short_name"`
}

// Cell is one (student, module) entry.
type Cell struct {
	Percent int    `json:"percent"`
	State   string `json:"state,omitempty"`
}

// String renders the cell as "N%".
func (c Cell) String() string {
	return strconv.Itoa(c.Percent) + "%"
}

// CellKey addresses a matrix cell.
type CellKey struct {
	StudentID int64
	ModuleID  int64
}

// Matrix is the student × module projection of summary rows. Cells is sparse:
// a pair without a summary row has no entry.
type Matrix struct {
	Students []Student
	Modules  []ModuleColumn
	Cells    map[CellKey]Cell
}

// Cell returns the cell of a student and module.
func (m *Matrix) Cell(studentID, moduleID int64) (Cell, bool) {
	c, ok := m.Cells[CellKey{StudentID: studentID, ModuleID: moduleID}]
	return c, ok
}

// Project builds the matrix from summary rows. Students and modules are
// deduplicated by id, first occurrence wins; module columns follow first-seen
// order. Students are ordered by DisplayID with numeric-aware collation
// ("IEST-9" before "IEST-10"); descending is the exact reverse of ascending.
func Project(summary []SummaryRow, order SortOrder) *Matrix {
	m := &Matrix{
		Students: []Student{},
		Modules:  []ModuleColumn{},
		Cells:    make(map[CellKey]Cell, len(summary)),
	}

	labeler := NewModuleLabeler()
	seenStudents := make(map[int64]bool)

	for _, row := range summary {
		if !seenStudents[row.StudentID] {
			seenStudents[row.StudentID] = true
			m.Students = append(m.Students, Student{
				ID:        row.StudentID,
				Name:      row.StudentName,
				SISUserID: row.SISUserID,
			})
		}
		if label, isNew := labeler.Label(row.ModuleID); isNew {
			m.Modules = append(m.Modules, ModuleColumn{ID: row.ModuleID, Name: row.ModuleName, Label: label})
		}
		m.Cells[CellKey{StudentID: row.StudentID, ModuleID: row.ModuleID}] = Cell{
			Percent: row.ModulePct,
			State:   row.ModuleState,
		}
	}

	SortStudents(m.Students, order)
	return m
}

// SortStudents orders students in place by DisplayID.
func SortStudents(students []Student, order SortOrder) {
	// a Collator is not safe for concurrent use
	c := collate.New(language.Und, collate.Numeric)
	var buf collate.Buffer
	keys := make([][]byte, len(students))
	for i, s := range students {
		keys[i] = append([]byte(nil), c.KeyFromString(&buf, s.DisplayID())...)
		buf.Reset()
	}

	idx := make([]int, len(students))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return bytes.Compare(keys[idx[i]], keys[idx[j]]) < 0
	})

	sorted := make([]Student, len(students))
	for i, k := range idx {
		sorted[i] = students[k]
	}
	if order == OrderDesc {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	copy(students, sorted)
}
