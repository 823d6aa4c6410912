package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/cloudvault/internal/domain"
)

// LocalStorage keeps objects as plain files under basePath/bucket/key.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Put(ctx context.Context, bucket, localPath, remoteKey string) error {
	destPath, err := l.objectPath(bucket, remoteKey)
	if err != nil {
		return err
	}
	if err := copyFile(localPath, destPath); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return nil
}

func (l *LocalStorage) Get(ctx context.Context, bucket, remoteKey, localPath string) error {
	srcPath, err := l.objectPath(bucket, remoteKey)
	if err != nil {
		return err
	}
	if err := copyFile(srcPath, localPath); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return nil
}

// Delete matches object store semantics: removing a missing key succeeds.
func (l *LocalStorage) Delete(ctx context.Context, bucket, remoteKeyOrPrefix string) error {
	target, err := l.objectPath(bucket, remoteKeyOrPrefix)
	if err != nil {
		return err
	}

	if strings.HasSuffix(remoteKeyOrPrefix, "/") {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("%w: failed to delete prefix: %w", domain.ErrStorage, err)
		}
		return nil
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to delete file: %w", domain.ErrStorage, err)
	}
	return nil
}

func (l *LocalStorage) List(ctx context.Context, bucket, prefix string) ([]domain.ObjectInfo, error) {
	root := filepath.Join(l.basePath, bucket)
	start, err := l.objectPath(bucket, prefix)
	if err != nil {
		return nil, err
	}
	// A prefix may name a partial file name, so walk from its directory.
	if !strings.HasSuffix(prefix, "/") && prefix != "" {
		start = filepath.Dir(start)
	}

	var objects []domain.ObjectInfo
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, domain.ObjectInfo{
			Name:       key,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read directory: %w", domain.ErrStorage, err)
	}

	return objects, nil
}

// GetPath returns where an object is kept on disk.
func (l *LocalStorage) GetPath(bucket, remoteKey string) string {
	return filepath.Join(l.basePath, bucket, filepath.FromSlash(remoteKey))
}

func (l *LocalStorage) objectPath(bucket, remoteKey string) (string, error) {
	root := filepath.Clean(filepath.Join(l.basePath, bucket))
	path := filepath.Join(root, filepath.FromSlash(remoteKey))
	if path != root && !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: key escapes bucket: %s", domain.ErrStorage, remoteKey)
	}
	return path, nil
}

func copyFile(srcPath, destPath string) error {
	source, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close dest: %w", err)
	}

	return nil
}
