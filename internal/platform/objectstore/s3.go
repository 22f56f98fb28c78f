package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type s3Store struct {
	log      *logger.Logger
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
}

// NewS3Store connects to S3 in the given region. bucket is the artifact
// bucket that URIFor keys are rooted in; Get/Put/Head/List accept URIs for
// any bucket so worker-staged outputs remain readable.
func NewS3Store(ctx context.Context, log *logger.Logger, bucket, region string) (Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing artifact bucket name")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &s3Store{
		log:     log.With("service", "S3Store"),
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		region:  region,
	}, nil
}

func (s *s3Store) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitURI(uri, "s3")
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *s3Store) Put(ctx context.Context, uri string, body io.Reader, contentType string) error {
	bucket, key, err := splitURI(uri, "s3")
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *s3Store) Head(ctx context.Context, uri string) (*ObjectInfo, error) {
	bucket, key, err := splitURI(uri, "s3")
	if err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	info := &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *s3Store) List(ctx context.Context, prefixURI string) ([]string, error) {
	bucket, prefix, err := splitURI(prefixURI, "s3")
	if err != nil {
		return nil, err
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, fmt.Sprintf("s3://%s/%s", bucket, aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}

func (s *s3Store) SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error) {
	bucket, key, err := splitURI(uri, "s3")
	if err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

func (s *s3Store) URIFor(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, strings.TrimPrefix(key, "/"))
}
