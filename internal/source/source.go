// Package source opens import input from a local path or an S3 object
// addressed as s3://bucket/key.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"jjcook/budgetdb/internal/logging"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// S3Config configures the client used for s3:// locations. Empty
// credentials fall back to the default AWS chain.
type S3Config struct {
	Region          string
	Endpoint        string // optional; MinIO or another S3-compatible server
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// GetObjectAPI is the part of *s3.Client the opener uses.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener resolves a location to a reader.
type Opener struct {
	cfg    S3Config
	logger logging.Logger

	once   sync.Once
	client GetObjectAPI
	err    error
}

// NewOpener creates an Opener. The S3 client is built on first use.
func NewOpener(cfg S3Config, logger logging.Logger) *Opener {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Opener{cfg: cfg, logger: logger}
}

// NewOpenerWithClient creates an Opener that reads s3:// locations through client.
func NewOpenerWithClient(client GetObjectAPI, logger logging.Logger) *Opener {
	o := NewOpener(S3Config{}, logger)
	o.once.Do(func() { o.client = client })
	return o
}

// Open returns the content at location. The caller closes it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, s3Scheme) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		return f, nil
	}
	bucket, key, ok := ParseS3URI(location)
	if !ok {
		return nil, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}

	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Fetching S3 object", logging.F(logging.FieldFile, location))
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	return out.Body, nil
}

func (o *Opener) s3Client(ctx context.Context) (GetObjectAPI, error) {
	o.once.Do(func() {
		o.client, o.err = NewS3Client(ctx, o.cfg)
	})
	return o.client, o.err
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ParseS3URI splits s3://bucket/key. Both parts must be non-empty.
func ParseS3URI(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
