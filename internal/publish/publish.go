// Package publish uploads rendered collection artifacts to an
// S3-compatible bucket after the render stage. Publishing is opt-in via
// the publish block of collection.yaml and is never fatal for a run.
package publish

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/pipeline"
)

// Sentinel errors for upload failures worth distinguishing in logs.
var (
	ErrAccessDenied       = errors.New("access denied")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("request throttled")
)

// PublishError wraps one failed artifact upload.
type PublishError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *PublishError) Error() string {
	return "publish " + e.Bucket + "/" + e.Key + ": " + e.Err.Error()
}

func (e *PublishError) Unwrap() error { return e.Err }

// contentTypes maps artifact extensions to their MIME types.
var contentTypes = map[string]string{
	".md":   "text/markdown",
	".html": "text/html",
	".json": "application/json",
	".nu":   "text/plain",
	".yaml": "application/yaml",
}

// objectPutter is the slice of the S3 client the publisher needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads artifacts per the collection's publish block. The
// zero value is not usable; call New.
type Publisher struct {
	// newClient builds the S3 client for a publish block; tests stub it.
	newClient func(ctx context.Context, cfg *collection.PublishConfig) (objectPutter, error)
}

var _ pipeline.ArtifactPublisher = (*Publisher)(nil)

// New returns a publisher backed by the AWS SDK default credential
// chain, honoring the profile, region, endpoint, and path-style options
// of each collection's publish block.
func New() *Publisher {
	return &Publisher{newClient: newS3Client}
}

func newS3Client(ctx context.Context, cfg *collection.PublishConfig) (objectPutter, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = "us-east-1"
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Publish uploads every artifact under the configured prefix. The first
// failure aborts the batch; the caller treats the error as a warning.
func (p *Publisher) Publish(ctx context.Context, cfg *collection.PublishConfig, files map[string]string) error {
	client, err := p.newClient(ctx, cfg)
	if err != nil {
		return &PublishError{Bucket: cfg.Bucket, Err: err}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := name
		if cfg.Prefix != "" {
			key = path.Join(cfg.Prefix, name)
		}
		input := &s3.PutObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(files[name]),
		}
		if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
			input.ContentType = aws.String(ct)
		}
		if _, err := client.PutObject(ctx, input); err != nil {
			return &PublishError{Bucket: cfg.Bucket, Key: key, Err: classify(err)}
		}
	}
	return nil
}

// classify maps S3 API error codes to sentinels.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "Forbidden":
		return errors.Join(ErrAccessDenied, err)
	case "NoSuchBucket":
		return errors.Join(ErrBucketNotFound, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.Join(ErrInvalidCredentials, err)
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return errors.Join(ErrThrottled, err)
	}
	return err
}
