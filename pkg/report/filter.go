package report

import "strings"

// Filter narrows summary and detail rows for the interactive view. Zero
// values match everything.
type Filter struct {
	// Name matches student names case-insensitively as a substring.
	Name string

	// Module matches the module name exactly. "all" is the same as empty.
	Module string
}

// IsZero reports whether the filter matches every row.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Name) == "" && (f.Module == "" || f.Module == "all")
}

func (f Filter) match(studentName, moduleName string) bool {
	if name := strings.ToLower(strings.TrimSpace(f.Name)); name != "" &&
		!strings.Contains(strings.ToLower(studentName), name) {
		return false
	}
	if f.Module != "" && f.Module != "all" && moduleName != f.Module {
		return false
	}
	return true
}

// Summary returns the rows matching the filter, keeping their order.
func (f Filter) Summary(rows []SummaryRow) []SummaryRow {
	if f.IsZero() {
		return rows
	}
	out := make([]SummaryRow, 0, len(rows))
	for _, r := range rows {
		if f.match(r.StudentName, r.ModuleName) {
			out = append(out, r)
		}
	}
	return out
}

// Detail returns the rows matching the filter, keeping their order.
func (f Filter) Detail(rows []DetailRow) []DetailRow {
	if f.IsZero() {
		return rows
	}
	out := make([]DetailRow, 0, len(rows))
	for _, r := range rows {
		if f.match(r.StudentName, r.ModuleName) {
			out = append(out, r)
		}
	}
	return out
}
