package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// Storage reads document blobs from a local directory, keyed by storage
// token. Used in development and tests instead of the OSS gateway.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Fetch(_ context.Context, token string) ([]byte, error) {
	clean := filepath.Clean(token)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return nil, domain.WrapError(domain.ErrPermissionDenied, "local fetch",
			fmt.Errorf("token escapes storage root: %s", token))
	}

	data, err := os.ReadFile(filepath.Join(s.basePath, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrObjectNotFound, "local fetch", err)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *Storage) Save(_ context.Context, token string, data []byte) error {
	path := filepath.Join(s.basePath, filepath.Clean(token))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
