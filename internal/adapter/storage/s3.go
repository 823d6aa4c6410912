package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appconfig "github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
)

// maxDeleteBatch is the DeleteObjects limit per request.
const maxDeleteBatch = 1000

type S3Storage struct {
	client     *s3.Client
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewS3 creates a new S3Storage instance using AWS SDK v2
func NewS3(ctx context.Context, cfg *appconfig.S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Storage{
		client:     client,
		uploader:   s3manager.NewUploader(client),
		downloader: s3manager.NewDownloader(client),
	}, nil
}

// Put uploads a local file to S3
func (s *S3Storage) Put(ctx context.Context, bucket, localPath, remoteKey string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open file: %w", domain.ErrStorage, err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(remoteKey),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload to S3: %w", domain.ErrStorage, err)
	}

	return nil
}

// Get downloads an object into localPath, creating parent directories.
func (s *S3Storage) Get(ctx context.Context, bucket, remoteKey, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", domain.ErrStorage, err)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %w", domain.ErrStorage, err)
	}

	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(remoteKey),
	})
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("%w: failed to download from S3: %w", domain.ErrStorage, err)
	}

	return nil
}

// Delete removes an object, or every object under a prefix ending in "/".
func (s *S3Storage) Delete(ctx context.Context, bucket, remoteKeyOrPrefix string) error {
	if !strings.HasSuffix(remoteKeyOrPrefix, "/") {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(remoteKeyOrPrefix),
		})
		if err != nil {
			return fmt.Errorf("%w: failed to delete from S3: %w", domain.ErrStorage, err)
		}
		return nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(remoteKeyOrPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("%w: failed to list S3 objects: %w", domain.ErrStorage, err)
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		for start := 0; start < len(ids); start += maxDeleteBatch {
			end := min(start+maxDeleteBatch, len(ids))
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &types.Delete{Objects: ids[start:end], Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("%w: failed to delete S3 objects: %w", domain.ErrStorage, err)
			}
			if err := deleteErrors(out.Errors); err != nil {
				return err
			}
		}
	}

	return nil
}

// List returns every object under prefix, following continuation tokens.
func (s *S3Storage) List(ctx context.Context, bucket, prefix string) ([]domain.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var objects []domain.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list S3 objects: %w", domain.ErrStorage, err)
		}
		for _, obj := range page.Contents {
			info := domain.ObjectInfo{
				Name: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModifiedAt = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

// deleteErrors turns the per-key failures of a quiet DeleteObjects call into
// a storage error.
func deleteErrors(failed []types.Error) error {
	if len(failed) == 0 {
		return nil
	}
	first := failed[0]
	return fmt.Errorf("%w: failed to delete %d S3 object(s), first %s: %s %s", domain.ErrStorage,
		len(failed), aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
}
