// Package storage reads and writes media in the S3-compatible bucket
// (Cloudflare R2 in production) and issues presigned download URLs for the
// publishing platforms.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

type Config struct {
	Bucket          string        `env:"STORAGE_BUCKET,required"`
	Endpoint        string        `env:"STORAGE_ENDPOINT"`
	Region          string        `env:"STORAGE_REGION" envDefault:"auto"`
	AccessKeyID     string        `env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"STORAGE_SECRET_ACCESS_KEY"`
	UsePathStyle    bool          `env:"STORAGE_USE_PATH_STYLE" envDefault:"false"`
	PresignTTL      time.Duration `env:"STORAGE_PRESIGN_TTL" envDefault:"1h"`
}

// Client is the subset of the S3 API the store uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store is safe for concurrent use.
type Store struct {
	client     Client
	presigner  Presigner
	bucket     string
	presignTTL time.Duration
}

type Option func(*Store)

// WithClient replaces the SDK client, e.g. with a mock.
func WithClient(c Client) Option {
	return func(s *Store) { s.client = c }
}

func WithPresigner(p Presigner) Option {
	return func(s *Store) { s.presigner = p }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrInvalidConfig
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Store{bucket: cfg.Bucket, presignTTL: ttl}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil && s.presigner != nil {
		return s, nil
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadConfig, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// R2 rejects the default CRC32 trailers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	if s.client == nil {
		s.client = client
	}
	if s.presigner == nil {
		s.presigner = s3.NewPresignClient(client)
	}
	return s, nil
}

// PresignGet returns a GET URL for key valid for ttl, or for the configured
// default when ttl is zero.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = s.presignTTL
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classifyError(err, "presign")
	}
	return req.URL, nil
}

func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return classifyError(err, "upload")
}

// DownloadTo streams the object into w and returns the bytes written.
func (s *Store) DownloadTo(ctx context.Context, key string, w io.Writer) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classifyError(err, "download")
	}
	if out.Body == nil {
		return 0, fmt.Errorf("%w: %s", ErrEmptyBody, key)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, classifyError(err, "download")
	}
	return n, nil
}

func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.DownloadTo(ctx, key, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return classifyError(err, "delete")
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// UploadKey builds users/{userID}/uploads/{uuid}-{filename} with the filename
// reduced to a safe character set.
func UploadKey(userID uuid.UUID, filename string) string {
	name := unsafeFilenameChars.ReplaceAllString(filename, "_")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	if len(name) > 200 {
		name = name[:200]
	}
	return fmt.Sprintf("users/%s/uploads/%s-%s", userID, uuid.New(), name)
}

// ScopedKey builds users/{userID}/{scope}/{contentItemID}/{uuid}.{ext}.
func ScopedKey(userID uuid.UUID, scope string, contentItemID uuid.UUID, ext string) string {
	return fmt.Sprintf("users/%s/%s/%s/%s.%s", userID, scope, contentItemID, uuid.New(), strings.TrimPrefix(ext, "."))
}

// classifyError maps SDK failures onto package errors. Messages keep the
// operation name and the service code so callers can pattern match them.
func classifyError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timeout", ErrOperationTimeout, op)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrOperationCanceled, op)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, op, err)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s: %v", ErrFileNotFound, op, err)
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, op)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "InternalError":
			return fmt.Errorf("%w: %s (code: %s): %v", ErrServiceUnavailable, op, apiErr.ErrorCode(), err)
		default:
			return fmt.Errorf("storage %s failed (code: %s): %w", op, apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("storage %s failed: %w", op, err)
}
