package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

// FileStore persists objects onto the local filesystem. It is intended for
// development environments where an object storage service is not available.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("objectstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory
func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) path(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

func (s *FileStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get object", err)
	}
	fullPath, err := s.path(key)
	if err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get object", err)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get object", err)
	}
	return data, nil
}

// PutObject writes data at key. The content type is not persisted.
func (s *FileStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "put object", err)
	}
	fullPath, err := s.path(key)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put object", err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return domain.E(domain.KindStorageFailure, "put object", fmt.Errorf("ensure directory: %w", err))
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return domain.E(domain.KindStorageFailure, "put object", fmt.Errorf("write file: %w", err))
	}
	return nil
}

// DeleteObject removes key. A missing key is not an error.
func (s *FileStore) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "delete object", err)
	}
	fullPath, err := s.path(key)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "delete object", err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.E(domain.KindStorageFailure, "delete object", err)
	}
	return nil
}

// PresignPut returns a file:// URL of the target path. Nothing signs it; a
// local client writes the file there directly.
func (s *FileStore) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return "", domain.E(domain.KindStorageFailure, "presign put", err)
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return "", domain.E(domain.KindStorageFailure, "presign put", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("objectstore: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("objectstore: invalid key")
	}
	return cleaned, nil
}
