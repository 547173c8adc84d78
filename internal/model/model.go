package model

import "time"

// DocumentView is the client-facing shape of a Document with its derived fields.
// FileURL and FileSize are nil when the referenced blob is not present in storage.
type DocumentView struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	UploadedAt   time.Time `json:"uploaded_at"`
	FileURL      *string   `json:"file_url"`
	FileName     string    `json:"file_name"`
	FileSize     *int64    `json:"file_size"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Available    bool      `json:"available"`
}

// NewDocumentView derives the view of doc. An empty url marks the blob as missing.
func NewDocumentView(doc Document, url string) DocumentView {
	v := DocumentView{
		ID:           doc.ID,
		Title:        doc.Title,
		UploadedAt:   doc.UploadedAt,
		FileName:     doc.FileName(),
		OriginalName: doc.OriginalName,
		ContentType:  doc.ContentType,
	}
	if url != "" {
		size := doc.Size
		v.FileURL = &url
		v.FileSize = &size
		v.Available = true
	}
	return v
}
