package repository

import "docshelf/internal/model"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// DocumentColumns is the column list matching ScanDocument.
const DocumentColumns = "id, title, storage_key, original_name, size, content_type, uploaded_at"

// ScanDocument reads one row selected with DocumentColumns.
func ScanDocument(s Scanner) (model.Document, error) {
	var d model.Document
	err := s.Scan(
		&d.ID,
		&d.Title,
		&d.StorageKey,
		&d.OriginalName,
		&d.Size,
		&d.ContentType,
		&d.UploadedAt,
	)
	return d, err
}
