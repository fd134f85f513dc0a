package cache

import "strings"

// Key identifies a cached report.
type Key struct {
	// Kind is the report format, e.g. "csv".
	Kind string

	// CourseID is the Canvas course id.
	CourseID string
}

// CSVKey is the key of a course's progress CSV.
func CSVKey(courseID string) Key {
	return Key{Kind: "csv", CourseID: courseID}
}

// String generates a deterministic key string.
// Format: progress:report:<kind>:course=<id>
//
// Example:
//
//	progress:report:csv:course=42
func (k Key) String() string {
	parts := []string{"progress", "report"}

	if kind := strings.TrimSpace(k.Kind); kind != "" {
		parts = append(parts, kind)
	}

	parts = append(parts, "course="+strings.TrimSpace(k.CourseID))

	return strings.Join(parts, ":")
}
