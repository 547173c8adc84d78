package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docshelf/internal/model"
	"docshelf/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (title, storage_key, original_name, size, content_type, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + repository.DocumentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.Title,
		doc.StorageKey,
		doc.OriginalName,
		doc.Size,
		doc.ContentType,
		doc.UploadedAt,
	)
	out, err := repository.ScanDocument(row)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `
		SELECT ` + repository.DocumentColumns + `
		FROM documents
		WHERE id = $1
	`
	d, err := repository.ScanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindByStorageKey fetches the document that owns a blob.
func (r *DocumentPostgres) FindByStorageKey(ctx context.Context, key string) (*model.Document, error) {
	const q = `
		SELECT ` + repository.DocumentColumns + `
		FROM documents
		WHERE storage_key = $1
	`
	d, err := repository.ScanDocument(r.db.QueryRowContext(ctx, q, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// List returns all documents, newest first.
func (r *DocumentPostgres) List(ctx context.Context) ([]model.Document, error) {
	const q = `
		SELECT ` + repository.DocumentColumns + `
		FROM documents
		ORDER BY uploaded_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := repository.ScanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
