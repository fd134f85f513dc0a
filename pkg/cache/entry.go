package cache

import (
	"time"
)

// ContentTypeCSV is the media type of the progress CSV.
const ContentTypeCSV = "text/csv; charset=utf-8"

// Entry is a cached report.
type Entry struct {
	// Data is the serialized report.
	Data []byte `json:"data"`

	// ContentType is the media type Data was rendered as.
	ContentType string `json:"content_type"`

	// GeneratedAt is when the report was built from Canvas data.
	GeneratedAt time.Time `json:"generated_at"`
}

// NewEntry wraps CSV bytes generated now.
func NewEntry(data []byte) *Entry {
	return &Entry{
		Data:        data,
		ContentType: ContentTypeCSV,
		GeneratedAt: time.Now().UTC(),
	}
}

// Age returns how long ago the report was generated.
func (e *Entry) Age() time.Duration {
	return time.Since(e.GeneratedAt)
}
