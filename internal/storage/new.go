package storage

import (
	"fmt"
	"log/slog"

	"docshelf/internal/config"
)

// New selects the blob backend named by the configuration.
// serviceURL is used by the filesystem backend when no public base URL is configured.
func New(cfg config.StorageConfig, serviceURL string, logger *slog.Logger) (Storage, error) {
	switch cfg.Backend {
	case config.BackendMinIO:
		return NewMinIO(cfg)
	case config.BackendFilesystem:
		base := cfg.PublicBaseURL
		if base == "" {
			base = serviceURL
		}
		return NewFilesystem(cfg.Filesystem.BasePath, base, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
