package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"docshelf/internal/model"
	"docshelf/internal/repository"
)

// DocumentSQLite is the single-file fallback implementation of repository.DocumentRepository.
type DocumentSQLite struct {
	db *sql.DB
}

// NewDocumentSQLite creates a new DocumentSQLite repository.
func NewDocumentSQLite(db *sql.DB) *DocumentSQLite {
	return &DocumentSQLite{db: db}
}

var _ repository.DocumentRepository = (*DocumentSQLite)(nil)

// Create inserts a row and reads it back through FindByID so uploaded_at is parsed
// from the DATETIME column. Timestamps are stored in UTC so text ordering matches time ordering.
func (r *DocumentSQLite) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (title, storage_key, original_name, size, content_type, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, q,
		doc.Title,
		doc.StorageKey,
		doc.OriginalName,
		doc.Size,
		doc.ContentType,
		doc.UploadedAt.UTC(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *DocumentSQLite) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `SELECT ` + repository.DocumentColumns + ` FROM documents WHERE id = ?`
	d, err := repository.ScanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DocumentSQLite) FindByStorageKey(ctx context.Context, key string) (*model.Document, error) {
	const q = `SELECT ` + repository.DocumentColumns + ` FROM documents WHERE storage_key = ?`
	d, err := repository.ScanDocument(r.db.QueryRowContext(ctx, q, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DocumentSQLite) List(ctx context.Context) ([]model.Document, error) {
	const q = `SELECT ` + repository.DocumentColumns + ` FROM documents ORDER BY uploaded_at DESC, id DESC`
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
	return items, rows.Err()
}
