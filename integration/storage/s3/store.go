package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client defines the S3 operations the store uses. Satisfied by
// *s3aws.Client and by test mocks.
type Client interface {
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3aws.GetObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3aws.HeadObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3aws.ListObjectsV2Input, optFns ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error)
}

// ListObjectsV2Paginator abstracts paginated listing for testability.
type ListObjectsV2Paginator interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error)
}

// Store is the object-store collaborator backed by an S3 bucket.
type Store struct {
	client           Client
	bucket           string
	uploadTimeout    time.Duration
	paginatorFactory func(client Client, params *s3aws.ListObjectsV2Input) ListObjectsV2Paginator
}

// Config contains connection settings for the store.
type Config struct {
	Bucket         string `env:"CERT_S3_BUCKET,required"`
	Region         string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"AWS_ACCESS_KEY_ID"`
	SecretKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken   string `env:"AWS_SESSION_TOKEN"`
	Endpoint       string `env:"CERT_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"CERT_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// Option configures a Store.
type Option func(*options)

type options struct {
	httpClient       *http.Client
	client           Client
	paginatorFactory func(client Client, params *s3aws.ListObjectsV2Input) ListObjectsV2Paginator
	uploadTimeout    time.Duration
}

// WithClient sets a pre-configured S3 client. Primarily for tests.
func WithClient(client Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithPaginatorFactory sets a custom paginator factory. Required when
// testing List/CopyPrefix with a mock client.
func WithPaginatorFactory(factory func(client Client, params *s3aws.ListObjectsV2Input) ListObjectsV2Paginator) Option {
	return func(o *options) {
		o.paginatorFactory = factory
	}
}

// WithUploadTimeout bounds individual Put calls. If unset, the caller's
// context deadline applies.
func WithUploadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.uploadTimeout = timeout
	}
}

// New creates the store, building an SDK client from the config unless one
// is injected. Static credentials are optional; the default AWS chain
// (instance role, env) is used otherwise.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					cfg.SessionToken,
				)),
			)
		}
		if o.httpClient != nil {
			awsOptions = append(awsOptions, awsconfig.WithHTTPClient(o.httpClient))
		}

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		client = s3aws.NewFromConfig(awsConfig, func(so *s3aws.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	paginatorFactory := o.paginatorFactory
	if paginatorFactory == nil {
		paginatorFactory = func(c Client, params *s3aws.ListObjectsV2Input) ListObjectsV2Paginator {
			if realClient, ok := c.(*s3aws.Client); ok {
				return s3aws.NewListObjectsV2Paginator(realClient, params)
			}
			// Mock clients must provide their own paginator.
			return nil
		}
	}

	return &Store{
		client:           client,
		bucket:           cfg.Bucket,
		uploadTimeout:    o.uploadTimeout,
		paginatorFactory: paginatorFactory,
	}, nil
}

// Put writes data at key, overwriting any previous object. Overwrite
// semantics make publish retries idempotent.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	_, err = s.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return classify(err, "put "+key)
	}
	return nil
}

// Get fetches the object at key, returning ErrNotFound for absent keys.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, "get "+key)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an object is present at key.
func (s *Store) Exists(ctx context.Context, key string) bool {
	key, err := cleanKey(key)
	if err != nil {
		return false
	}
	_, err = s.client.HeadObject(ctx, &s3aws.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// List returns all object keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}

	paginator := s.paginatorFactory(s.client, &s3aws.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if paginator == nil {
		return nil, ErrPaginatorNil
	}

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "list "+prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// CopyPrefix downloads every object under prefix into dstDir, preserving
// the key structure below the prefix. Returns the local paths written.
// An empty result means nothing was uploaded for that prefix.
func (s *Store) CopyPrefix(ctx context.Context, prefix, dstDir string) ([]string, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	cleanPrefix, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(cleanPrefix, "/") {
		cleanPrefix += "/"
	}

	var written []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, cleanPrefix)
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}

		data, err := s.Get(ctx, key)
		if err != nil {
			return written, err
		}

		local := filepath.Join(dstDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(local), 0o700); err != nil {
			return written, fmt.Errorf("create staging directory: %w", err)
		}
		if err := os.WriteFile(local, data, 0o600); err != nil {
			return written, fmt.Errorf("write %s: %w", local, err)
		}
		written = append(written, local)
	}
	return written, nil
}

// cleanKey rejects keys that could escape the bucket namespace.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}
