package export

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const csvContentType = "text/csv"

type S3Config struct {
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// S3Sink uploads exports to a single bucket. A key ending in "/" (or no key)
// is treated as a prefix and the export name is appended.
type S3Sink struct {
	client *s3.Client
	bucket string
	key    string
}

func NewS3Sink(ctx context.Context, bucket, key string, cfg S3Config) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})

	return &S3Sink{client: client, bucket: bucket, key: key}, nil
}

func (s *S3Sink) Save(ctx context.Context, name string, payload []byte) (string, error) {
	key := s.key
	if key == "" || strings.HasSuffix(key, "/") {
		key = path.Join(key, name)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(csvContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object: %w", err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}

func parseS3Target(target string) (string, string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 target: %w", err)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("s3 target %q has no bucket", target)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}
