package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileBackend persists artifacts on the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Signed URLs are unsupported; deployments using it must serve the
// directory behind a public base URL.
type FileBackend struct {
	basePath string
}

// NewFileBackend initializes a FileBackend rooted at basePath.
func NewFileBackend(basePath string) (*FileBackend, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("artifact: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure base path: %w", err)
	}
	return &FileBackend{basePath: basePath}, nil
}

func (b *FileBackend) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("artifact: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write file: %w", err)
	}
	return nil
}

func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("artifact: read file: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		fullPath, err := b.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("artifact: remove file: %w", err)
		}
	}
	return nil
}

func (b *FileBackend) PresignGet(ctx context.Context, key string, lifetime time.Duration) (string, error) {
	return "", errors.New("artifact: filesystem backend cannot sign urls, set a public base url")
}

// resolve maps a key to a path under basePath, rejecting traversal attempts.
func (b *FileBackend) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("artifact: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("artifact: invalid key")
	}
	return filepath.Join(b.basePath, filepath.FromSlash(cleaned)), nil
}
