package handler

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docshelf/internal/model"
	"docshelf/internal/service"
)

type documentResponse struct {
	Success  bool                `json:"success"`
	Document *model.DocumentView `json:"document"`
}

type documentListResponse struct {
	Success   bool                 `json:"success"`
	Documents []model.DocumentView `json:"documents"`
}

// UploadDocument godoc
// @Summary Upload a document
// @Description Stores a titled file. Allowed extensions and the size limit are configurable.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Document title"
// @Param file formData file true "Document file"
// @Success 201 {object} documentResponse
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/upload/ [post]
func UploadDocument(svc service.DocumentService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in := service.UploadInput{Title: c.FormValue("title")}

		// A missing file part is reported by the service alongside any title problem.
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer f.Close()

			in.File = f
			in.FileName = fh.Filename
			in.ContentType = fh.Header.Get(fiber.HeaderContentType)
			in.Size = fh.Size
		}

		view, err := svc.Upload(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, logger, "upload", err, "title", in.Title, "file_name", in.FileName)
		}
		return c.Status(fiber.StatusCreated).JSON(documentResponse{Success: true, Document: view})
	}
}

// ListDocuments godoc
// @Summary List documents
// @Description Returns every document, newest first.
// @Tags documents
// @Produce json
// @Success 200 {object} documentListResponse
// @Failure 500 {object} errorPayload
// @Router /api/documents/ [get]
func ListDocuments(svc service.DocumentService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, logger, "list", err)
		}
		return c.JSON(documentListResponse{Success: true, Documents: docs})
	}
}

// GetDocument godoc
// @Summary Get a document
// @Tags documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 200 {object} documentResponse
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/documents/{id}/ [get]
func GetDocument(svc service.DocumentService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		view, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, logger, "get", err, "id", id)
		}
		return c.JSON(documentResponse{Success: true, Document: view})
	}
}

// DownloadDocument godoc
// @Summary Download a document
// @Description Redirects to a URL serving the document's content.
// @Tags documents
// @Param id path int true "Document ID"
// @Success 302
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/documents/{id}/download/ [get]
func DownloadDocument(svc service.DocumentService, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		target, err := svc.Download(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, logger, "download", err, "id", id)
		}
		return c.Redirect(target.URL, fiber.StatusFound)
	}
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
