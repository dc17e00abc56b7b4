package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/replicate/kaniko-controller/internal/logging"
)

// LocalStorage maps buckets to directories under rootDir. It stands in for S3
// when running the controller on a workstation.
type LocalStorage struct {
	rootDir string
	logger  *logging.Logger
}

func NewLocalStorage(rootDir string, logger *logging.Logger) (*LocalStorage, error) {
	info, err := os.Stat(rootDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Root directory %s doesn't exist", rootDir)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("Root path %s is not a directory", rootDir)
	}
	return &LocalStorage{rootDir: rootDir, logger: logger.Named("local")}, nil
}

func (s *LocalStorage) Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(bucket, key)
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Debugw("reading object", "path", path)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", Location(bucket, key), ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to read %s: %w", path, err)
	}
	return file, nil
}

func (s *LocalStorage) Put(ctx context.Context, bucket string, key string, body io.Reader) error {
	path, err := s.pathFor(bucket, key)
	if err != nil {
		return err
	}
	s.logger.Sugar().Debugw("saving object", "path", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Failed to create %s: %w", filepath.Dir(path), err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Failed to create %s: %w", path, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("Failed to write %s: %w", path, err)
	}
	return file.Close()
}

func (s *LocalStorage) pathFor(bucket string, key string) (string, error) {
	path := filepath.Join(s.rootDir, bucket, filepath.FromSlash(key))
	bucketDir := filepath.Join(s.rootDir, bucket)
	if bucket == "" || path == bucketDir || !strings.HasPrefix(path, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object address %q", Location(bucket, key))
	}
	return path, nil
}
