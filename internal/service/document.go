package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docshelf/internal/model"
	"docshelf/internal/repository"
	"docshelf/internal/storage"
)

const (
	maxTitleLength = 255
	maxKeyAttempts = 3
	keyPrefix      = "documents/"
)

var errKeysExhausted = errors.New("no free storage key")

// UploadInput is a single multipart upload as received from the client.
// File is nil when the request carried no file part. Size is the declared byte length.
type UploadInput struct {
	Title       string
	File        io.Reader
	FileName    string
	ContentType string
	Size        int64
}

// DownloadTarget is where a client should be redirected to fetch a document's content.
type DownloadTarget struct {
	URL      string
	Document model.Document
}

// Options configures the upload policy and per-call behavior of the service.
// A zero MaxUploadBytes or empty AllowedExtensions disables that check;
// a zero Timeout leaves the caller's deadline as the only bound.
// TracerProvider defaults to the global provider.
type Options struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	Timeout           time.Duration
	Logger            *slog.Logger
	TracerProvider    trace.TracerProvider
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload validates the request, writes the blob, then records its metadata. If the record
	// cannot be written the blob is deleted again. The stored key is a random UUID plus the
	// original extension and never overwrites an existing object.
	Upload(ctx context.Context, in UploadInput) (*model.DocumentView, error)

	// List returns every document, newest first. Documents whose blob is missing are
	// included but marked unavailable.
	List(ctx context.Context) ([]model.DocumentView, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id int64) (*model.DocumentView, error)

	// Download resolves the URL a client should be redirected to for the document's content.
	// A missing blob is reported as ErrBlobMissing, never as ErrNotFound.
	Download(ctx context.Context, id int64) (*DownloadTarget, error)

	// FindByStorageKey returns the document that owns the blob stored under key.
	FindByStorageKey(ctx context.Context, key string) (*model.Document, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store   storage.Storage
	repo    repository.DocumentRepository
	maxSize int64
	allowed map[string]struct{}
	extList string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	now    func() time.Time
	newKey func(ext string) string
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts Options) DocumentService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	s := &documentService{
		store:   store,
		repo:    repo,
		maxSize: opts.MaxUploadBytes,
		timeout: opts.Timeout,
		logger:  logger.With("component", "document_service"),
		tracer:  tp.Tracer(tracerName),
		now:     time.Now,
		newKey: func(ext string) string {
			return keyPrefix + uuid.NewString() + ext
		},
	}

	if len(opts.AllowedExtensions) > 0 {
		s.allowed = make(map[string]struct{}, len(opts.AllowedExtensions))
		for _, e := range opts.AllowedExtensions {
			s.allowed[strings.ToLower(e)] = struct{}{}
		}
		s.extList = strings.Join(opts.AllowedExtensions, ", ")
	}
	return s
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (_ *model.DocumentView, err error) {
	ctx, span := s.startSpan(ctx, "Upload",
		attribute.String("document.file_name", in.FileName),
		attribute.Int64("document.size", in.Size),
	)
	defer func() { endSpan(span, err) }()

	title := strings.TrimSpace(in.Title)
	fileName := baseName(in.FileName)
	ext := strings.ToLower(path.Ext(fileName))

	if err := s.validate(title, fileName, ext, in); err != nil {
		return nil, err
	}

	key, err := s.reserveKey(ctx, ext)
	if err != nil {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	putCtx, cancel := s.opContext(ctx)
	objInfo, err := s.store.Put(putCtx, key, in.File, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": url.PathEscape(fileName),
		},
	})
	cancel()
	if err != nil {
		return nil, storageErr("upload to storage", err)
	}

	doc := &model.Document{
		Title:        title,
		StorageKey:   key,
		OriginalName: fileName,
		Size:         objInfo.Size,
		ContentType:  contentType,
		UploadedAt:   s.now().UTC(),
	}

	dbCtx, cancel := s.opContext(ctx)
	stored, err := s.repo.Create(dbCtx, doc)
	cancel()
	if err != nil {
		return nil, s.rollbackBlob(ctx, key, title, err)
	}

	span.SetAttributes(attribute.Int64("document.id", stored.ID), attribute.String("document.storage_key", key))
	s.logger.Info("document uploaded", "id", stored.ID, "title", stored.Title, "storage_key", key, "size", stored.Size)

	view := s.committedView(ctx, *stored)
	return &view, nil
}

// committedView derives the view of a document whose blob and record were both just
// written. The upload has succeeded at this point, so a URL lookup failure only
// marks the view unavailable.
func (s *documentService) committedView(ctx context.Context, d model.Document) model.DocumentView {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	fileURL, err := s.store.URL(opCtx, d.StorageKey)
	if err != nil {
		s.logger.Warn("resolve url after upload failed", "id", d.ID, "storage_key", d.StorageKey, "error", err)
		return model.NewDocumentView(d, "")
	}
	return model.NewDocumentView(d, fileURL)
}

// rollbackBlob deletes a blob whose record could not be written. It runs on a context
// detached from the caller so a canceled request still cleans up.
func (s *documentService) rollbackBlob(ctx context.Context, key, title string, dbErr error) error {
	rbCtx, cancel := s.opContext(context.WithoutCancel(ctx))
	defer cancel()

	if delErr := s.store.Delete(rbCtx, key); delErr != nil {
		s.logger.Error("rollback delete failed", "storage_key", key, "title", title, "error", delErr, "db_error", dbErr)
		return fmt.Errorf("db save failed: %w: %w; rollback delete failed: %v", ErrDatabase, dbErr, delErr)
	}
	return databaseErr("db save failed", dbErr)
}

func (s *documentService) validate(title, fileName, ext string, in UploadInput) error {
	verr := &ValidationError{Message: "Validation error"}

	if title == "" {
		verr.add("title", "This field is required.")
	} else if n := utf8.RuneCountInString(title); n > maxTitleLength {
		verr.add("title", fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxTitleLength, n))
	}

	switch {
	case in.File == nil:
		verr.add("file", "No file was submitted.")
	case fileName == "":
		verr.add("file", "No filename could be determined.")
	case in.Size == 0:
		verr.add("file", "The submitted file is empty.")
	case in.Size < 0:
		verr.add("file", "The submitted file has no declared size.")
	default:
		if s.maxSize > 0 && in.Size > s.maxSize {
			verr.add("file", FileTooLargeMessage(s.maxSize))
		}
		if s.allowed != nil {
			if _, ok := s.allowed[ext]; !ok {
				if ext == "" {
					verr.add("file", fmt.Sprintf("File has no extension; allowed: %s", s.extList))
				} else {
					verr.add("file", fmt.Sprintf("Unsupported file extension %q; allowed: %s", ext, s.extList))
				}
			}
		}
	}

	if verr.empty() {
		return nil
	}
	return verr
}

// reserveKey draws random keys until one is not yet present in storage.
func (s *documentService) reserveKey(ctx context.Context, ext string) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key := s.newKey(ext)

		opCtx, cancel := s.opContext(ctx)
		exists, err := s.store.Exists(opCtx, key)
		cancel()
		if err != nil {
			return "", storageErr("check storage key", err)
		}
		if !exists {
			return key, nil
		}
		s.logger.Warn("storage key collision", "storage_key", key, "attempt", attempt+1)
	}
	return "", storageErr("allocate storage key", errKeysExhausted)
}

func (s *documentService) List(ctx context.Context) (_ []model.DocumentView, err error) {
	ctx, span := s.startSpan(ctx, "List")
	defer func() { endSpan(span, err) }()

	dbCtx, cancel := s.opContext(ctx)
	docs, err := s.repo.List(dbCtx)
	cancel()
	if err != nil {
		return nil, databaseErr("list documents", err)
	}

	span.SetAttributes(attribute.Int("document.count", len(docs)))
	views := make([]model.DocumentView, 0, len(docs))
	for _, d := range docs {
		view, err := s.view(ctx, d)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *documentService) Get(ctx context.Context, id int64) (_ *model.DocumentView, err error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *doc)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *documentService) Download(ctx context.Context, id int64) (_ *DownloadTarget, err error) {
	ctx, span := s.startSpan(ctx, "Download", attribute.Int64("document.id", id))
	defer func() { endSpan(span, err) }()

	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	fileURL, err := s.resolveURL(ctx, *doc)
	if err != nil {
		return nil, fmt.Errorf("download document %d: %w", id, err)
	}
	return &DownloadTarget{URL: fileURL, Document: *doc}, nil
}

func (s *documentService) FindByStorageKey(ctx context.Context, key string) (_ *model.Document, err error) {
	ctx, span := s.startSpan(ctx, "FindByStorageKey", attribute.String("document.storage_key", key))
	defer func() { endSpan(span, err) }()

	dbCtx, cancel := s.opContext(ctx)
	defer cancel()

	doc, err := s.repo.FindByStorageKey(dbCtx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, databaseErr("find document by key", err)
	}
	return doc, nil
}

func (s *documentService) find(ctx context.Context, id int64) (*model.Document, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	dbCtx, cancel := s.opContext(ctx)
	defer cancel()

	doc, err := s.repo.FindByID(dbCtx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, databaseErr("find document", err)
	}
	return doc, nil
}

// view derives the client view of d; a missing blob yields an unavailable view.
func (s *documentService) view(ctx context.Context, d model.Document) (model.DocumentView, error) {
	fileURL, err := s.resolveURL(ctx, d)
	if err != nil {
		if errors.Is(err, ErrBlobMissing) {
			s.logger.Warn("document blob missing", "id", d.ID, "title", d.Title, "storage_key", d.StorageKey)
			return model.NewDocumentView(d, ""), nil
		}
		return model.DocumentView{}, err
	}
	return model.NewDocumentView(d, fileURL), nil
}

// resolveURL confirms the blob exists and returns its public URL.
func (s *documentService) resolveURL(ctx context.Context, d model.Document) (string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	exists, err := s.store.Exists(opCtx, d.StorageKey)
	if err != nil {
		return "", storageErr("check blob", err)
	}
	if !exists {
		return "", ErrBlobMissing
	}

	u, err := s.store.URL(opCtx, d.StorageKey)
	if err != nil {
		return "", storageErr("resolve url", err)
	}
	return u, nil
}

func (s *documentService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// FileTooLargeMessage is the validation message for a file above max bytes.
func FileTooLargeMessage(max int64) string {
	return "File size must be under " + sizeLimitText(max)
}

// sizeLimitText renders whole mebibyte limits as "10MB" and anything else in binary units.
func sizeLimitText(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return units.BytesSize(float64(n))
}

// baseName strips any client-side directory components, including Windows-style ones.
func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return ""
	}
	b := path.Base(name)
	if b == "/" || b == "." {
		return ""
	}
	return b
}
