package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported blob storage backends.
const (
	BackendMinIO      = "minio"
	BackendFilesystem = "filesystem"
)

// DatabaseConfig holds record store connection settings.
type DatabaseConfig struct {
	Driver             string `toml:"driver"`
	Host               string `toml:"host"`
	Port               string `toml:"port"`
	User               string `toml:"user"`
	Password           string `toml:"password"`
	Name               string `toml:"name"`
	SSLMode            string `toml:"sslmode"`
	MaxOpenConns       int    `toml:"max_open_conns"`
	MaxIdleConns       int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `toml:"conn_max_lifetime_sec"`
	SQLitePath         string `toml:"sqlite_path"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// FilesystemConfig holds settings for the local blob store.
type FilesystemConfig struct {
	BasePath string `toml:"base_path"`
}

// StorageConfig selects and configures the blob backend.
// PublicBaseURL, when set, is used to build blob URLs instead of presigning (minio)
// or instead of the service address (filesystem).
type StorageConfig struct {
	Backend       string           `toml:"backend"`
	PublicBaseURL string           `toml:"public_base_url"`
	URLExpiry     string           `toml:"url_expiry"`
	MinIO         MinIOConfig      `toml:"minio"`
	Filesystem    FilesystemConfig `toml:"filesystem"`

	urlExpiry time.Duration
}

// URLExpiryDuration returns the parsed lifetime of presigned URLs.
func (s StorageConfig) URLExpiryDuration() time.Duration {
	return s.urlExpiry
}

// UploadConfig is the upload validation policy.
// An empty AllowedExtensions disables the extension allow-list.
type UploadConfig struct {
	MaxUploadSize     string   `toml:"max_upload_size"`
	AllowedExtensions []string `toml:"allowed_extensions"`

	maxUploadBytes int64
}

// MaxUploadBytes returns the parsed upload limit.
func (u UploadConfig) MaxUploadBytes() int64 {
	return u.maxUploadBytes
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HTTPConfig holds CORS and security header settings.
type HTTPConfig struct {
	CORSAllowedOrigins string `toml:"cors_allowed_origins"`
	HSTSMaxAge         int    `toml:"hsts_max_age"`
	HSTSPreload        bool   `toml:"hsts_preload"`
}

// AppConfig is the centralized configuration struct for the application.
// It is built once by Load and then only read.
type AppConfig struct {
	AppHost          string         `toml:"app_host"`
	Port             string         `toml:"port"`
	Timezone         string         `toml:"timezone"`
	OperationTimeout string         `toml:"operation_timeout"`
	Log              LogConfig      `toml:"log"`
	HTTP             HTTPConfig     `toml:"http"`
	Database         DatabaseConfig `toml:"database"`
	Storage          StorageConfig  `toml:"storage"`
	Upload           UploadConfig   `toml:"upload"`

	location         *time.Location
	operationTimeout time.Duration
}

// Location returns the time zone used for log timestamps.
func (c *AppConfig) Location() *time.Location {
	return c.location
}

// OperationTimeoutDuration returns the bound applied to each record store and storage round-trip.
func (c *AppConfig) OperationTimeoutDuration() time.Duration {
	return c.operationTimeout
}

// Load builds the configuration: defaults, then the optional TOML file at path,
// then environment variables. A .env file can be auto-loaded by importing
// _ "github.com/joho/godotenv/autoload"; real environment variables take precedence.
func Load(path string) (*AppConfig, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.loadEnv()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		AppHost:          "localhost:8080",
		Port:             "8080",
		Timezone:         "UTC",
		OperationTimeout: "30s",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			CORSAllowedOrigins: "*",
			HSTSMaxAge:         31536000,
			HSTSPreload:        true,
		},
		Database: DatabaseConfig{
			Driver:             DriverPostgres,
			Port:               "5432",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 300,
			SQLitePath:         ".data/docshelf.db",
		},
		Storage: StorageConfig{
			Backend:    BackendMinIO,
			URLExpiry:  "15m",
			Filesystem: FilesystemConfig{BasePath: ".data/blobs"},
		},
		Upload: UploadConfig{
			MaxUploadSize:     "10MiB",
			AllowedExtensions: []string{".pdf", ".doc", ".docx", ".txt"},
		},
	}
}

func (c *AppConfig) loadEnv() {
	c.AppHost = getEnv("APP_HOST", c.AppHost)
	c.Port = getEnv("PORT", c.Port)
	c.Timezone = getEnv("APP_TIMEZONE", c.Timezone)
	c.OperationTimeout = getEnv("OPERATION_TIMEOUT", c.OperationTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.HTTP.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.HTTP.CORSAllowedOrigins)
	c.HTTP.HSTSMaxAge = getEnvInt("HSTS_MAX_AGE", c.HTTP.HSTSMaxAge)
	c.HTTP.HSTSPreload = getEnvBool("HSTS_PRELOAD", c.HTTP.HSTSPreload)

	db := &c.Database
	db.Driver = getEnv("DB_DRIVER", db.Driver)
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnv("DB_PORT", db.Port)
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.Name = getEnv("DB_NAME", db.Name)
	db.SSLMode = getEnv("DB_SSLMODE", db.SSLMode)
	db.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetimeSec = getEnvInt("DB_CONN_MAX_LIFETIME_SEC", db.ConnMaxLifetimeSec)
	db.SQLitePath = getEnv("SQLITE_PATH", db.SQLitePath)

	st := &c.Storage
	st.Backend = getEnv("STORAGE_BACKEND", st.Backend)
	st.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", st.PublicBaseURL)
	st.URLExpiry = getEnv("STORAGE_URL_EXPIRY", st.URLExpiry)
	st.Filesystem.BasePath = getEnv("FILESYSTEM_BASE_PATH", st.Filesystem.BasePath)
	st.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", st.MinIO.Endpoint)
	st.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", st.MinIO.AccessKey)
	st.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", st.MinIO.SecretKey)
	st.MinIO.Bucket = getEnv("MINIO_BUCKET", st.MinIO.Bucket)
	st.MinIO.UseSSL = getEnvBool("MINIO_USE_SSL", st.MinIO.UseSSL)

	c.Upload.MaxUploadSize = getEnv("MAX_UPLOAD_SIZE", c.Upload.MaxUploadSize)
	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		c.Upload.AllowedExtensions = splitList(v)
	}
}

func (c *AppConfig) finalize() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	timeout, err := time.ParseDuration(c.OperationTimeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("invalid operation_timeout %q", c.OperationTimeout)
	}
	c.operationTimeout = timeout

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q (must be postgres or sqlite)", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case BackendMinIO, BackendFilesystem:
	default:
		return fmt.Errorf("unsupported storage backend %q (must be minio or filesystem)", c.Storage.Backend)
	}
	c.Storage.PublicBaseURL = strings.TrimRight(c.Storage.PublicBaseURL, "/")

	expiry, err := time.ParseDuration(c.Storage.URLExpiry)
	if err != nil || expiry <= 0 {
		return fmt.Errorf("invalid url_expiry %q", c.Storage.URLExpiry)
	}
	c.Storage.urlExpiry = expiry

	size, err := units.RAMInBytes(c.Upload.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	c.Upload.maxUploadBytes = size
	c.Upload.AllowedExtensions = normalizeExtensions(c.Upload.AllowedExtensions)

	return nil
}

// normalizeExtensions lower-cases, dot-prefixes, dedupes and sorts the list.
// A "*" entry disables the allow-list.
func normalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if e == "*" {
			return nil
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
