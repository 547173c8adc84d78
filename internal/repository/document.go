package repository

import (
	"context"
	"errors"

	"docshelf/internal/model"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("record not found")

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, only persistence operations. Documents are
// append-only, so there is no update or delete.
type DocumentRepository interface {
	// Create inserts a new document record. The id is assigned by the database;
	// the stored row is returned.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// FindByStorageKey returns the document referencing the blob stored under key, or ErrNotFound.
	FindByStorageKey(ctx context.Context, key string) (*model.Document, error)

	// List returns every document, newest upload first.
	List(ctx context.Context) ([]model.Document, error)
}
