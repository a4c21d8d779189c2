package artifacts

import (
	"context"
	"fmt"
	"io"

	"vocalis/internal/config"
	"vocalis/internal/services"
)

// Store abstracts recording storage behind key-addressed operations.
type Store interface {
	// Put streams a recording under the given key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open returns a reader for the stored recording. The caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat reports whether the recording exists and its size in bytes.
	Stat(ctx context.Context, key string) (int64, error)
	// Remove deletes the stored recording. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// NewFromConfig constructs the artifact store selected by configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Artifacts.Backend {
	case "fs":
		return NewFS(cfg.Paths.UploadDir)
	case "minio":
		return NewMinio(ctx, cfg.Artifacts.Minio)
	default:
		return nil, fmt.Errorf("artifact backend %q is not supported", cfg.Artifacts.Backend)
	}
}

func notFound(key string, cause error) error {
	return services.Wrap(services.ErrNotFound, fmt.Sprintf("recording %s not found", key), cause)
}
