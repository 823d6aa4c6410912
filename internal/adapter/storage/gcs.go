package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
)

type GCSStorage struct {
	service *gcs.Service
}

func NewGCS(ctx context.Context, cfg *config.GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	service, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &GCSStorage{service: service}, nil
}

func (g *GCSStorage) Put(ctx context.Context, bucket, localPath, remoteKey string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open file: %w", domain.ErrStorage, err)
	}
	defer file.Close()

	_, err = g.service.Objects.Insert(bucket, &gcs.Object{Name: remoteKey}).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("%w: failed to upload to gcs: %w", domain.ErrStorage, err)
	}

	return nil
}

func (g *GCSStorage) Get(ctx context.Context, bucket, remoteKey, localPath string) error {
	resp, err := g.service.Objects.Get(bucket, remoteKey).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("%w: failed to download from gcs: %w", domain.ErrStorage, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", domain.ErrStorage, err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %w", domain.ErrStorage, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(localPath)
		return fmt.Errorf("%w: failed to write download: %w", domain.ErrStorage, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: failed to close file: %w", domain.ErrStorage, err)
	}

	return nil
}

func (g *GCSStorage) Delete(ctx context.Context, bucket, remoteKeyOrPrefix string) error {
	if !strings.HasSuffix(remoteKeyOrPrefix, "/") {
		if err := g.service.Objects.Delete(bucket, remoteKeyOrPrefix).Context(ctx).Do(); err != nil && !isNotFound(err) {
			return fmt.Errorf("%w: failed to delete file: %w", domain.ErrStorage, err)
		}
		return nil
	}

	objects, err := g.List(ctx, bucket, remoteKeyOrPrefix)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := g.service.Objects.Delete(bucket, obj.Name).Context(ctx).Do(); err != nil && !isNotFound(err) {
			return fmt.Errorf("%w: failed to delete %s: %w", domain.ErrStorage, obj.Name, err)
		}
	}

	return nil
}

func (g *GCSStorage) List(ctx context.Context, bucket, prefix string) ([]domain.ObjectInfo, error) {
	var objects []domain.ObjectInfo

	err := g.service.Objects.List(bucket).
		Prefix(prefix).
		Fields("nextPageToken", "items(name,size,updated)").
		Pages(ctx, func(page *gcs.Objects) error {
			for _, obj := range page.Items {
				updated, _ := time.Parse(time.RFC3339, obj.Updated)
				objects = append(objects, domain.ObjectInfo{
					Name:       obj.Name,
					Size:       int64(obj.Size),
					ModifiedAt: updated,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list objects: %w", domain.ErrStorage, err)
	}

	return objects, nil
}

// isNotFound reports a 404 from the GCS API. Deleting a missing object is
// treated as done.
func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
