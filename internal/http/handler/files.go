package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"

	"github.com/gofiber/fiber/v2"

	"docshelf/internal/service"
	"docshelf/internal/storage"
)

// ServeBlob streams blobs of the local filesystem backend, which resolves
// document URLs to this route. The download is named after the document's
// original file name when the blob belongs to a known document.
func ServeBlob(store storage.Storage, docSvc service.DocumentService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := url.PathUnescape(c.Params("*"))
		if err != nil || key == "" {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
		}

		rc, info, err := store.Get(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			}
			logger.Error("request_failed", "op", "serve_blob", "storage_key", key, "error", err)
			return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", "internal server error")
		}

		c.Attachment(downloadName(c.UserContext(), docSvc, logger, key))
		c.Set(fiber.HeaderContentType, info.ContentType)
		return c.SendStream(rc, int(info.Size))
	}
}

// downloadName falls back to the key's base name for orphaned blobs or when the lookup fails.
func downloadName(ctx context.Context, docSvc service.DocumentService, logger *slog.Logger, key string) string {
	doc, err := docSvc.FindByStorageKey(ctx, key)
	switch {
	case err == nil && doc.OriginalName != "":
		return doc.OriginalName
	case err != nil && !errors.Is(err, service.ErrNotFound):
		logger.Warn("blob owner lookup failed", "storage_key", key, "error", err)
	}
	return path.Base(key)
}
