package model

import (
	"path"
	"time"
)

// Document represents an uploaded file's metadata record.
// This is a pure domain model with no database-specific dependencies or tags.
// Documents are immutable once created.
type Document struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	StorageKey   string    `json:"storage_key"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// FileName is the base name of the stored object key.
func (d Document) FileName() string {
	if d.StorageKey == "" {
		return ""
	}
	return path.Base(d.StorageKey)
}
