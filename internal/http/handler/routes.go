package handler

import (
	"database/sql"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"docshelf/internal/service"
	"docshelf/internal/storage"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// blobs is the filesystem store whose content is served under /files/; pass nil
// when documents are served by an object store.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, blobs storage.Storage, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/upload/", UploadDocument(docSvc, logger))
	api.Get("/documents/", ListDocuments(docSvc, logger))
	api.Get("/documents/:id/", GetDocument(docSvc, logger))
	api.Get("/documents/:id/download/", DownloadDocument(docSvc, logger))

	if blobs != nil {
		app.Get(storage.FilesRoutePrefix+"*", ServeBlob(blobs, docSvc, logger))
	}
}
