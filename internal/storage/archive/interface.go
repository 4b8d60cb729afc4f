// Package archive stores serialized backtest results as blobs on a local
// filesystem or an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/quarry/internal/core"
)

// Backends.
const (
	BackendLocalFS = "localfs"
	BackendS3      = "s3"
)

// Storage is a flat blob store keyed by slash-separated relative paths.
type Storage interface {
	// Write stores data at the given path, replacing any previous blob.
	Write(ctx context.Context, path string, data []byte) error

	// Read returns the blob, or an error matching core.ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
}

// New opens the configured backend.
func New(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendLocalFS:
		if cfg.Path == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive path is empty"))
		}
		return NewLocalFS(cfg.Path)
	case BackendS3:
		return NewS3(cfg.S3)
	}
	return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive backend %q", cfg.Backend))
}

// cleanPath rejects paths that would escape the archive root.
func cleanPath(p string) (string, error) {
	raw := strings.Trim(strings.TrimSpace(p), "/")
	c := path.Clean("/" + raw)[1:]
	if c == "" || c != raw {
		return "", core.Validationf("invalid archive path %q", p)
	}
	return c, nil
}

func notFound(p string) error {
	return core.WrapError(core.ErrNotFound, fmt.Errorf("archive blob %q", p))
}
