package consumer

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/withObsrvr/whr-pipeline/pkg/checkpoint"
)

// StorageClient writes whole objects to a storage backend.
type StorageClient interface {
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	StorageType     string // "FS", "GCS", "S3"
	LocalPath       string
	BucketName      string
	PathPrefix      string
	Region          string
	CredentialsFile string
	ContentType     string
	MaxRetries      int
}

func storageConfigFrom(config map[string]interface{}, defaultLocalPath, contentType string) (StorageConfig, error) {
	cfg := StorageConfig{
		StorageType:     strings.ToUpper(getString(config, "storage_type", "FS")),
		LocalPath:       expandHome(getString(config, "local_path", defaultLocalPath)),
		BucketName:      getString(config, "bucket_name", ""),
		PathPrefix:      strings.Trim(getString(config, "path_prefix", ""), "/"),
		Region:          getString(config, "region", ""),
		CredentialsFile: getString(config, "credentials_file", ""),
		ContentType:     contentType,
		MaxRetries:      getInt(config, "max_retries", 3),
	}

	switch cfg.StorageType {
	case "FS":
		if cfg.LocalPath == "" {
			return cfg, errors.New("local_path is required for FS storage type")
		}
	case "GCS":
		if cfg.BucketName == "" {
			return cfg, errors.New("bucket_name is required for GCS storage type")
		}
	case "S3":
		if cfg.BucketName == "" {
			return cfg, errors.New("bucket_name is required for S3 storage type")
		}
		if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
	default:
		return cfg, errors.Errorf("unsupported storage_type: %s", cfg.StorageType)
	}
	return cfg, nil
}

// objectKey joins the configured prefix and name with "/".
func (c StorageConfig) objectKey(name string) string {
	if c.PathPrefix == "" || c.StorageType == "FS" {
		return name
	}
	return c.PathPrefix + "/" + name
}

// createStorageClient builds the backend for cfg, wrapped with retries for
// the cloud backends.
func createStorageClient(ctx context.Context, cfg StorageConfig) (StorageClient, error) {
	var (
		client StorageClient
		err    error
	)
	switch cfg.StorageType {
	case "FS":
		return NewLocalFSClient(cfg.LocalPath)
	case "GCS":
		client, err = NewGCSClient(ctx, cfg.BucketName, cfg.CredentialsFile, cfg.ContentType)
	case "S3":
		client, err = NewS3Client(ctx, cfg.BucketName, cfg.Region, cfg.ContentType)
	default:
		return nil, errors.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
	if err != nil {
		return nil, err
	}
	return NewRetryableStorageClient(client, cfg.MaxRetries), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// LocalFSClient writes objects as files below a base directory.
type LocalFSClient struct {
	basePath string
}

func NewLocalFSClient(basePath string) (*LocalFSClient, error) {
	absPath, err := filepath.Abs(expandHome(basePath))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get absolute path")
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create base directory")
	}
	return &LocalFSClient{basePath: absPath}, nil
}

// Write stores data atomically. Keys must stay inside the base directory.
func (c *LocalFSClient) Write(ctx context.Context, key string, data []byte) error {
	cleanKey := filepath.Clean(key)
	if filepath.IsAbs(cleanKey) {
		return errors.Errorf("absolute paths not allowed in key: %s", key)
	}
	fullPath := filepath.Join(c.basePath, cleanKey)
	rel, err := filepath.Rel(c.basePath, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Errorf("invalid key path: %s", key)
	}

	if err := checkpoint.WriteAtomic(fullPath, data); err != nil {
		return err
	}
	log.WithFields(log.Fields{"path": fullPath, "bytes": len(data)}).Debug("LocalFSClient: wrote object")
	return nil
}

func (c *LocalFSClient) Close() error {
	return nil
}

// GCSClient writes objects to a Google Cloud Storage bucket.
type GCSClient struct {
	client      *storage.Client
	bucket      string
	contentType string
	metadata    map[string]string
}

// NewGCSClient uses application default credentials unless a service
// account key file is given.
func NewGCSClient(ctx context.Context, bucketName, credentialsFile, contentType string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client")
	}
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to access bucket %s", bucketName)
	}

	log.WithField("bucket", bucketName).Info("GCSClient initialized")
	return &GCSClient{
		client:      client,
		bucket:      bucketName,
		contentType: contentType,
		metadata:    map[string]string{"generator": "whr-pipeline"},
	}, nil
}

func (c *GCSClient) Write(ctx context.Context, key string, data []byte) error {
	w := c.client.Bucket(c.bucket).Object(key).NewWriter(ctx)
	w.ContentType = c.contentType
	w.Metadata = c.metadata
	w.CacheControl = "no-cache, max-age=0"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "failed to write to GCS object %s", key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "failed to close GCS writer for %s", key)
	}
	return nil
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}

// S3Client writes objects to an S3 bucket.
type S3Client struct {
	uploader    *manager.Uploader
	bucket      string
	contentType string
	metadata    map[string]string
}

func NewS3Client(ctx context.Context, bucketName, region, contentType string) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(3),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		return nil, errors.Wrapf(err, "failed to access bucket %s", bucketName)
	}

	log.WithFields(log.Fields{"bucket": bucketName, "region": region}).Info("S3Client initialized")
	return &S3Client{
		uploader:    manager.NewUploader(client),
		bucket:      bucketName,
		contentType: contentType,
		metadata:    map[string]string{"generator": "whr-pipeline"},
	}, nil
}

func (c *S3Client) Write(ctx context.Context, key string, data []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(c.contentType),
		Metadata:    c.metadata,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload to S3 %s/%s", c.bucket, key)
	}
	return nil
}

func (c *S3Client) Close() error {
	return nil
}

// RetryableStorageClient retries failed writes with exponential backoff.
type RetryableStorageClient struct {
	client     StorageClient
	maxRetries int
	retryDelay time.Duration
}

func NewRetryableStorageClient(client StorageClient, maxRetries int) *RetryableStorageClient {
	return &RetryableStorageClient{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

func (r *RetryableStorageClient) Write(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(1<<(attempt-1))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			log.WithFields(log.Fields{"key": key, "attempt": attempt, "delay": delay}).Warn("retrying write")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.client.Write(ctx, key, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return errors.Wrapf(lastErr, "failed after %d retries", r.maxRetries)
}

func (r *RetryableStorageClient) Close() error {
	return r.client.Close()
}

// isRetryableError treats cancellation and client errors (4xx other than
// 408 and 429) as permanent.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableStatus(gerr.Code)
	}
	var aerr *awshttp.ResponseError
	if errors.As(err, &aerr) {
		return retryableStatus(aerr.HTTPStatusCode())
	}
	return true
}

func retryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code < 400 || code >= 500
}
