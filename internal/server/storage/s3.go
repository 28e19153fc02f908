package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/asavelyev/mediahub/internal/server/models"
)

// Indirections for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// S3Config carries the settings for an S3-compatible backend (MinIO in
// development).
type S3Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store implements ObjectStore on top of aws-sdk-go-v2.
type S3Store struct {
	cfg S3Config
}

func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

// randomStorageKey spreads objects by date so buckets stay listable.
func randomStorageKey(ext string) string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v%s", d.Year(), int(d.Month()), d.Day(), uuid.New(), ext)
}

func (s *S3Store) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload stores the staged file and returns its asset reference. The
// staged file is removed afterwards whether or not the upload succeeded;
// it has no value once this call returns.
func (s *S3Store) Upload(ctx context.Context, localPath string) (*models.AssetRef, error) {
	defer os.Remove(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	key := randomStorageKey(filepath.Ext(localPath))

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		in.ContentType = aws.String(ct)
	}

	if _, err := putObject(client, ctx, in); err != nil {
		return nil, fmt.Errorf("s3 put: %w", err)
	}

	return &models.AssetRef{URL: s.publicURL(key), StorageKey: key}, nil
}

// Delete removes an object by its storage key.
func (s *S3Store) Delete(ctx context.Context, storageKey string) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func (s *S3Store) publicURL(key string) string {
	// Keys are date segments plus a UUID, URL-safe by construction.
	base := strings.TrimRight(s.cfg.BaseEndpoint, "/")
	return base + "/" + s.cfg.Bucket + "/" + key
}
