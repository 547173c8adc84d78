package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"docshelf/internal/model"
	"docshelf/internal/repository"
	repoMocks "docshelf/internal/repository/mocks"
	"docshelf/internal/storage"
	storeMocks "docshelf/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testExtensions = []string{".doc", ".docx", ".pdf", ".txt"}

func newTestService(store storage.Storage, repo repository.DocumentRepository) *documentService {
	svc := NewDocumentService(store, repo, Options{
		MaxUploadBytes:    10 << 20,
		AllowedExtensions: testExtensions,
		Timeout:           time.Second,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}).(*documentService)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()
	const key = "documents/fixed.txt"

	tests := []struct {
		name       string
		in         func() UploadInput
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantErrMsg string
		wantFields map[string][]string

		wantUnavailable bool
	}{
		{
			name: "happy path",
			in: func() UploadInput {
				return UploadInput{Title: "Notes", File: strings.NewReader("hello world"), FileName: "notes.txt", ContentType: "text/plain", Size: 11}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil).Once()
				mStore.On("Put", mock.Anything, key, mock.Anything, storage.PutObjectOptions{
					Size:        11,
					ContentType: "text/plain",
					Metadata:    map[string]string{"original-filename": "notes.txt"},
				}).Return(storage.ObjectInfo{Key: key, Size: 11, ContentType: "text/plain"}, nil)

				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
					return doc.Title == "Notes" && doc.StorageKey == key && doc.OriginalName == "notes.txt" && doc.Size == 11
				})).Return(func(_ context.Context, doc *model.Document) *model.Document {
					out := *doc
					out.ID = 7
					return &out
				}, nil)

				mStore.On("URL", mock.Anything, key).Return("http://blobs/"+key, nil)
			},
		},
		{
			name: "url lookup failure after commit still succeeds",
			in: func() UploadInput {
				return UploadInput{Title: "Notes", File: strings.NewReader("hello world"), FileName: "notes.txt", ContentType: "text/plain", Size: 11}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil).Once()
				mStore.On("Put", mock.Anything, key, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: key, Size: 11, ContentType: "text/plain"}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(func(_ context.Context, doc *model.Document) *model.Document {
					out := *doc
					out.ID = 7
					return &out
				}, nil)
				mStore.On("URL", mock.Anything, key).Return("", errors.New("timeout"))
			},
			wantUnavailable: true,
		},
		{
			name: "missing title and file",
			in: func() UploadInput {
				return UploadInput{Title: "   "}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrValidation,
			wantFields: map[string][]string{
				"title": {"This field is required."},
				"file":  {"No file was submitted."},
			},
		},
		{
			name: "empty file",
			in: func() UploadInput {
				return UploadInput{Title: "Empty", File: strings.NewReader(""), FileName: "empty.txt", Size: 0}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrValidation,
			wantFields: map[string][]string{"file": {"The submitted file is empty."}},
		},
		{
			name: "too large",
			in: func() UploadInput {
				return UploadInput{Title: "Big", File: strings.NewReader("x"), FileName: "big.pdf", Size: 10<<20 + 1}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrValidation,
			wantFields: map[string][]string{"file": {"File size must be under 10MB"}},
		},
		{
			name: "exactly at the limit is accepted by validation",
			in: func() UploadInput {
				return UploadInput{Title: "Edge", File: strings.NewReader("x"), FileName: "edge.txt", Size: 10 << 20}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil)
				mStore.On("Put", mock.Anything, key, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("short write"))
			},
			wantErr:    ErrStorage,
			wantErrMsg: "upload to storage",
		},
		{
			name: "unsupported extension",
			in: func() UploadInput {
				return UploadInput{Title: "Tool", File: strings.NewReader("MZ"), FileName: "tool.EXE", Size: 2}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrValidation,
			wantFields: map[string][]string{"file": {`Unsupported file extension ".exe"; allowed: .doc, .docx, .pdf, .txt`}},
		},
		{
			name: "title too long",
			in: func() UploadInput {
				return UploadInput{Title: strings.Repeat("a", 256), File: strings.NewReader("x"), FileName: "a.txt", Size: 1}
			},
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrValidation,
			wantFields: map[string][]string{"title": {"Ensure this value has at most 255 characters (it has 256)."}},
		},
		{
			name: "storage error",
			in: func() UploadInput {
				return UploadInput{Title: "Notes", File: strings.NewReader("hello"), FileName: "notes.txt", Size: 5}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil)
				mStore.On("Put", mock.Anything, key, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErr:    ErrStorage,
			wantErrMsg: "upload to storage: storage error: storage fail",
		},
		{
			name: "repository error with successful rollback",
			in: func() UploadInput {
				return UploadInput{Title: "Notes", File: strings.NewReader("hello"), FileName: "notes.txt", Size: 5}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil)
				mStore.On("Put", mock.Anything, key, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: key, Size: 5}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, key).Return(nil)
			},
			wantErr:    ErrDatabase,
			wantErrMsg: "db save failed: database error: db fail",
		},
		{
			name: "repository error with failed rollback",
			in: func() UploadInput {
				return UploadInput{Title: "Notes", File: strings.NewReader("hello"), FileName: "notes.txt", Size: 5}
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Exists", mock.Anything, key).Return(false, nil)
				mStore.On("Put", mock.Anything, key, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: key, Size: 5}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, key).Return(errors.New("delete fail"))
			},
			wantErr:    ErrDatabase,
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := newTestService(mStore, mRepo)
			svc.newKey = func(ext string) string { return "documents/fixed" + ext }

			tt.setupMocks(mStore, mRepo)

			view, err := svc.Upload(ctx, tt.in())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, view)
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				if tt.wantFields != nil {
					var verr *ValidationError
					require.ErrorAs(t, err, &verr)
					assert.Equal(t, tt.wantFields, verr.Fields)
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, view)
				assert.Equal(t, int64(7), view.ID)
				assert.Equal(t, "Notes", view.Title)
				assert.Equal(t, "fixed.txt", view.FileName)
				if tt.wantUnavailable {
					assert.Nil(t, view.FileURL)
					assert.Nil(t, view.FileSize)
					assert.False(t, view.Available)
				} else {
					require.NotNil(t, view.FileURL)
					assert.Equal(t, "http://blobs/"+key, *view.FileURL)
					require.NotNil(t, view.FileSize)
					assert.Equal(t, int64(11), *view.FileSize)
					assert.True(t, view.Available)
				}
				mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Upload_KeyCollision(t *testing.T) {
	ctx := context.Background()

	t.Run("retries until a free key is drawn", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := newTestService(mStore, mRepo)

		keys := []string{"documents/taken.pdf", "documents/free.pdf"}
		n := 0
		svc.newKey = func(string) string { k := keys[n]; n++; return k }

		mStore.On("Exists", mock.Anything, "documents/taken.pdf").Return(true, nil)
		mStore.On("Exists", mock.Anything, "documents/free.pdf").Return(false, nil).Once()
		mStore.On("Put", mock.Anything, "documents/free.pdf", mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{Key: "documents/free.pdf", Size: 3}, nil)
		mRepo.On("Create", mock.Anything, mock.Anything).
			Return(&model.Document{ID: 1, Title: "T", StorageKey: "documents/free.pdf", Size: 3}, nil)
		mStore.On("URL", mock.Anything, "documents/free.pdf").Return("u", nil)

		view, err := svc.Upload(ctx, UploadInput{Title: "T", File: strings.NewReader("pdf"), FileName: "t.pdf", Size: 3})
		require.NoError(t, err)
		assert.Equal(t, "free.pdf", view.FileName)
		mStore.AssertNotCalled(t, "Put", mock.Anything, "documents/taken.pdf", mock.Anything, mock.Anything)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockDocumentRepository))
		svc.newKey = func(string) string { return "documents/taken.pdf" }

		mStore.On("Exists", mock.Anything, "documents/taken.pdf").Return(true, nil).Times(maxKeyAttempts)

		_, err := svc.Upload(ctx, UploadInput{Title: "T", File: strings.NewReader("pdf"), FileName: "t.pdf", Size: 3})
		assert.ErrorIs(t, err, ErrStorage)
		mStore.AssertExpectations(t)
		mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name       string
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		checkRes   func(t *testing.T, res []model.DocumentView)
	}{
		{
			name: "happy path",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", mock.Anything).Return([]model.Document{
					{ID: 2, Title: "B", StorageKey: "documents/b.pdf", Size: 20, UploadedAt: now},
					{ID: 1, Title: "A", StorageKey: "documents/a.txt", Size: 10, UploadedAt: now.Add(-time.Minute)},
				}, nil)
				mStore.On("Exists", mock.Anything, mock.Anything).Return(true, nil)
				mStore.On("URL", mock.Anything, "documents/b.pdf").Return("http://x/b.pdf", nil)
				mStore.On("URL", mock.Anything, "documents/a.txt").Return("http://x/a.txt", nil)
			},
			checkRes: func(t *testing.T, res []model.DocumentView) {
				require.Len(t, res, 2)
				assert.Equal(t, int64(2), res[0].ID)
				assert.Equal(t, "http://x/b.pdf", *res[0].FileURL)
				assert.Equal(t, int64(20), *res[0].FileSize)
				assert.Equal(t, "a.txt", res[1].FileName)
			},
		},
		{
			name: "empty",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", mock.Anything).Return([]model.Document{}, nil)
			},
			checkRes: func(t *testing.T, res []model.DocumentView) {
				assert.NotNil(t, res)
				assert.Empty(t, res)
			},
		},
		{
			name: "missing blob is listed as unavailable",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", mock.Anything).Return([]model.Document{
					{ID: 3, Title: "Gone", StorageKey: "documents/gone.pdf", Size: 5, UploadedAt: now},
				}, nil)
				mStore.On("Exists", mock.Anything, "documents/gone.pdf").Return(false, nil)
			},
			checkRes: func(t *testing.T, res []model.DocumentView) {
				require.Len(t, res, 1)
				assert.False(t, res[0].Available)
				assert.Nil(t, res[0].FileURL)
				assert.Nil(t, res[0].FileSize)
				assert.Equal(t, "gone.pdf", res[0].FileName)
			},
		},
		{
			name: "storage error",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", mock.Anything).Return([]model.Document{{ID: 1, StorageKey: "documents/a.txt"}}, nil)
				mStore.On("Exists", mock.Anything, "documents/a.txt").Return(false, errors.New("timeout"))
			},
			wantErr: ErrStorage,
		},
		{
			name: "repository error",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErr: ErrDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := newTestService(mStore, mRepo)

			tt.setupMocks(mStore, mRepo)

			res, err := svc.List(ctx)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			} else {
				assert.NoError(t, err)
				tt.checkRes(t, res)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   4,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(4)).Return(&model.Document{ID: 4, StorageKey: "documents/d.txt"}, nil)
				mStore.On("Exists", mock.Anything, "documents/d.txt").Return(true, nil)
				mStore.On("URL", mock.Anything, "documents/d.txt").Return("http://x/d.txt", nil)
			},
		},
		{
			name:       "non-positive id",
			id:         0,
			setupMocks: func(*storeMocks.MockStorage, *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNotFound,
		},
		{
			name: "not found",
			id:   999999,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(999999)).Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(5)).Return(nil, errors.New("db fail"))
			},
			wantErr: ErrDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := newTestService(mStore, mRepo)

			tt.setupMocks(mStore, mRepo)

			view, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, view)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.id, view.ID)
				assert.True(t, view.Available)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Download(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantURL    string
		wantErr    error
	}{
		{
			name: "redirect target",
			id:   1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.Document{ID: 1, StorageKey: "documents/a.pdf"}, nil)
				mStore.On("Exists", mock.Anything, "documents/a.pdf").Return(true, nil)
				mStore.On("URL", mock.Anything, "documents/a.pdf").Return("http://x/a.pdf?sig=1", nil)
			},
			wantURL: "http://x/a.pdf?sig=1",
		},
		{
			name: "unknown id",
			id:   999999,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(999999)).Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "blob missing",
			id:   2,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(2)).Return(&model.Document{ID: 2, StorageKey: "documents/b.pdf"}, nil)
				mStore.On("Exists", mock.Anything, "documents/b.pdf").Return(false, nil)
			},
			wantErr: ErrBlobMissing,
		},
		{
			name: "url resolution fails",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(&model.Document{ID: 3, StorageKey: "documents/c.pdf"}, nil)
				mStore.On("Exists", mock.Anything, "documents/c.pdf").Return(true, nil)
				mStore.On("URL", mock.Anything, "documents/c.pdf").Return("", errors.New("presign failed"))
			},
			wantErr: ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := newTestService(mStore, mRepo)

			tt.setupMocks(mStore, mRepo)

			target, err := svc.Download(ctx, tt.id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, target)
				if errors.Is(tt.wantErr, ErrBlobMissing) {
					assert.NotErrorIs(t, err, ErrNotFound)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, target.URL)
				assert.Equal(t, tt.id, target.Document.ID)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "report.pdf", baseName("report.pdf"))
	assert.Equal(t, "report.pdf", baseName(`C:\Users\me\report.pdf`))
	assert.Equal(t, "report.pdf", baseName("/tmp/uploads/report.pdf"))
	assert.Equal(t, "", baseName("  "))
	assert.Equal(t, "", baseName("/"))
}

func TestSizeLimitText(t *testing.T) {
	assert.Equal(t, "10MB", sizeLimitText(10<<20))
	assert.Equal(t, "1.5KiB", sizeLimitText(1536))
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{Message: "Validation error"}
	verr.add("title", "This field is required.")
	verr.add("file", "No file was submitted.")

	assert.ErrorIs(t, verr, ErrValidation)
	assert.Equal(t, "Validation error: file: No file was submitted.; title: This field is required.", verr.Error())
}

func TestDocumentService_FindByStorageKey(t *testing.T) {
	ctx := context.Background()
	const key = "documents/77.pdf"

	tests := []struct {
		name    string
		repoErr error
		wantErr error
	}{
		{name: "owner found"},
		{name: "orphaned blob", repoErr: repository.ErrNotFound, wantErr: ErrNotFound},
		{name: "repository error", repoErr: errors.New("conn reset"), wantErr: ErrDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := newTestService(new(storeMocks.MockStorage), mRepo)

			if tt.repoErr != nil {
				mRepo.On("FindByStorageKey", mock.Anything, key).Return(nil, tt.repoErr)
			} else {
				mRepo.On("FindByStorageKey", mock.Anything, key).
					Return(&model.Document{ID: 77, StorageKey: key, OriginalName: "plan.pdf"}, nil)
			}

			doc, err := svc.FindByStorageKey(ctx, key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, doc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "plan.pdf", doc.OriginalName)
		})
	}
}
