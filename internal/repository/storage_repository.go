package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RubachokBoss/exam-grading/import-service/internal/config"
	"github.com/rs/zerolog"
)

// FileStorage keeps the imported submission files. Keys are slash separated
// and relative to the configured bucket or root.
type FileStorage interface {
	Put(ctx context.Context, key string, file io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Provider() string
}

// NewFileStorage picks the provider named in cfg.Storage.Provider.
func NewFileStorage(cfg *config.Config, logger zerolog.Logger) (FileStorage, error) {
	switch strings.ToLower(cfg.Storage.Provider) {
	case "", "local":
		return NewLocalStorage(filepath.Join(cfg.Storage.RootPath, cfg.Storage.Bucket), logger)
	case "minio":
		return NewMinIOStorage(
			cfg.MinIO.Endpoint,
			cfg.MinIO.AccessKey,
			cfg.MinIO.SecretKey,
			cfg.Storage.Bucket,
			cfg.MinIO.Region,
			cfg.MinIO.UseSSL,
			cfg.MinIO.ConnectTimeout,
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// StorageKey builds the object key for a stored submission file.
func StorageKey(examID, studentCode, submissionID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s%s", examID, studentCode, submissionID, strings.ToLower(filepath.Ext(fileName)))
}

type LocalStorage struct {
	root   string
	logger zerolog.Logger
}

func NewLocalStorage(root string, logger zerolog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	logger.Info().Str("root", root).Msg("Using local file storage")

	return &LocalStorage{root: root, logger: logger}, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, file io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create storage folder: %w", err)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && n != size {
		os.Remove(target)
		return fmt.Errorf("short write for %s: %d of %d bytes", key, n, size)
	}

	s.logger.Debug().Str("key", key).Int64("size", n).Msg("File stored")
	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	target, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStorage) Provider() string {
	return "local"
}
