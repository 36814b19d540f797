package documents

import "time"

// Document is a caller's base resume. Content holds the full LaTeX (or
// plain text) source; the pipeline reads it and never writes it back.
type Document struct {
	ID        string
	UserID    string
	FileName  string
	MimeType  string
	SizeBytes int64
	Content   string
	CreatedAt time.Time
}
