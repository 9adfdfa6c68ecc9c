package reliability

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aristath/sigmaguard/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// RemoteObject describes an uploaded snapshot archive
type RemoteObject struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// ObjectStore is the off-site destination for snapshot archives
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
	Delete(ctx context.Context, key string) error
}

// S3Client uploads snapshots to an S3-compatible bucket (AWS, R2, MinIO)
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Client creates a client from the backup configuration.
// A custom endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg config.BackupConfig, log zerolog.Logger) (*S3Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backup bucket not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		log:      log.With().Str("client", "s3").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

func (c *S3Client) objectKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return path.Join(c.prefix, key)
}

// Upload streams body to the bucket under the configured prefix
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader) error {
	fullKey := c.objectKey(key)
	if _, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}
	c.log.Debug().Str("key", fullKey).Msg("Uploaded object")
	return nil
}

// List returns objects whose key (relative to the prefix) starts with prefix.
// Returned keys are relative to the configured prefix.
func (c *S3Client) List(ctx context.Context, prefix string) ([]RemoteObject, error) {
	fullPrefix := c.objectKey(prefix)
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(fullPrefix),
	})

	var objects []RemoteObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", fullPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			ro := RemoteObject{Key: path.Base(*obj.Key)}
			if obj.Size != nil {
				ro.SizeBytes = *obj.Size
			}
			if obj.LastModified != nil {
				ro.LastModified = *obj.LastModified
			}
			objects = append(objects, ro)
		}
	}
	return objects, nil
}

// Delete removes one object
func (c *S3Client) Delete(ctx context.Context, key string) error {
	fullKey := c.objectKey(key)
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", fullKey, err)
	}
	return nil
}
