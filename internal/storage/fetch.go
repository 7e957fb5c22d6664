package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"
)

// Fetch downloads a single interchange file from src into the store's
// fetched directory and returns its local path. src accepts any go-getter
// address (http, s3, gcs, git, local paths).
func (s *Store) Fetch(ctx context.Context, src, name string) (string, error) {
	dir := filepath.Join(s.dir, fetchedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	dst := filepath.Join(dir, fileName(name))

	if err := getter.GetFile(dst, src, getter.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("fetch %s: %w", src, err)
	}
	s.log.Info("fetched", zap.String("src", src), zap.String("path", dst))
	return dst, nil
}
