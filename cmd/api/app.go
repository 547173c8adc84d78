package main

import (
	"database/sql"
	"log/slog"
	"strings"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docshelf/docs"
	"docshelf/internal/config"
	handlers "docshelf/internal/http/handler"
	"docshelf/internal/http/middleware"
	"docshelf/internal/service"
	"docshelf/internal/storage"
)

// multipartOverhead is the body allowance on top of the upload limit for the
// title field and multipart framing.
const multipartOverhead = 1 << 20

// metricsRegistry is what newApp needs from a Prometheus registry.
type metricsRegistry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// newApp builds the Fiber application with middleware and routes. blobs is served
// under /files/ when non-nil.
func newApp(cfg *config.AppConfig, db *sql.DB, docSvc service.DocumentService, blobs storage.Storage, log *slog.Logger, reg metricsRegistry) (*fiber.App, error) {
	maxUpload := cfg.Upload.MaxUploadBytes()

	fcfg := fiber.Config{
		AppName:               "docshelf",
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(maxUpload),
	}
	if maxUpload > 0 {
		fcfg.BodyLimit = int(maxUpload + multipartOverhead)
	}
	app := fiber.New(fcfg)

	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log.With("component", "access")))
	app.Use(prom.Handler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.HTTP.CORSAllowedOrigins,
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodHead, fiber.MethodOptions}, ","),
	}))
	app.Use(helmet.New(helmet.Config{
		HSTSMaxAge:         cfg.HTTP.HSTSMaxAge,
		HSTSPreloadEnabled: cfg.HTTP.HSTSPreload,
	}))

	app.Get(middleware.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(app, db, docSvc, blobs, log)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return app, nil
}
