package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docshelf/internal/config"
	"docshelf/internal/model"
	"docshelf/internal/repository/postgres"
	"docshelf/internal/repository/sqlite"
	serviceMocks "docshelf/internal/service/mocks"
)

func testApp(t *testing.T) (*fiber.App, *serviceMocks.MockDocumentService) {
	t.Helper()
	t.Setenv("MAX_UPLOAD_SIZE", "1KiB")
	t.Setenv("CORS_ALLOWED_ORIGINS", "*")

	cfg, err := config.Load("")
	require.NoError(t, err)

	svc := new(serviceMocks.MockDocumentService)
	app, err := newApp(cfg, nil, svc, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	return app, svc
}

func TestNewApp_MiddlewareAndMetrics(t *testing.T) {
	app, svc := testApp(t)
	svc.On("List", mock.Anything).Return([]model.DocumentView{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/", nil)
	req.Header.Set("Origin", "https://frontend.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/api/documents/",status="200"} 1`)
	assert.Contains(t, string(body), "http_request_duration_seconds")
}

func TestNewApp_Swagger(t *testing.T) {
	app, _ := testApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/upload/")
	assert.Contains(t, paths, "/api/documents/{id}/download/")
}

func TestNewApp_BodyLimitAnswersValidationError(t *testing.T) {
	app, _ := testApp(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("title", "Huge"))
	part, err := w.CreateFormFile("file", "huge.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), multipartOverhead+4096))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var res struct {
		Success bool                `json:"success"`
		Errors  map[string][]string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res.Success)
	assert.Equal(t, []string{"File size must be under 1KiB"}, res.Errors["file"])
}

func TestNewRepository(t *testing.T) {
	db := &sql.DB{}

	repo, err := newRepository(config.DriverPostgres, db)
	require.NoError(t, err)
	assert.IsType(t, &postgres.DocumentPostgres{}, repo)

	repo, err = newRepository(config.DriverSQLite, db)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.DocumentSQLite{}, repo)

	_, err = newRepository("oracle", db)
	assert.Error(t, err)
}

func TestRunMigrate_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	t.Setenv("DB_DRIVER", config.DriverSQLite)
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	require.NoError(t, runMigrate(context.Background(), ""))

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n))
	assert.Equal(t, 0, n)
}
