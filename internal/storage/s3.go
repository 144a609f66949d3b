// Package storage mirrors downloaded PDFs to an S3-compatible bucket when
// one is configured. It is optional: paperkg runs entirely off local disk
// without it, and NewClient returns nil when no bucket is set. The one
// consumer is the downloader, which uses a Client as its Mirror.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"paperkg/internal/util"
)

// Client wraps an S3 client with the bucket it writes into.
type Client struct {
	s3     *s3.Client
	bucket string
}

// NewClient builds a Client from AWS_* environment variables. It returns nil
// when AWS_BUCKET is unset, since the mirror is opt-in.
func NewClient(ctx context.Context) *Client {
	bucket := util.GetEnv("AWS_BUCKET")
	if bucket == "" {
		return nil
	}

	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &Client{s3: client, bucket: bucket}
}

// MirrorPDF uploads a downloaded PDF's bytes under key "papers/{paperID}.pdf"
// and returns the object key. Transient S3 errors are retried a small fixed
// number of times; this is a best-effort side channel, not on the EDC
// workflow's critical path, so failures here never fail a download.
func (c *Client) MirrorPDF(ctx context.Context, paperID string, data []byte) (string, error) {
	key := keyForPaper(paperID)

	err := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/pdf"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("mirror pdf to s3: %w", err)
	}
	return key, nil
}

// FetchPDF downloads a previously mirrored PDF back out of S3.
func (c *Client) FetchPDF(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pdf from s3: %w", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return buf.Bytes(), nil
}

// PresignedURL returns a time-limited URL for an object previously written
// by MirrorPDF.
func (c *Client) PresignedURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(c.s3)
	out, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presign s3 object: %w", err)
	}
	return out.URL, nil
}

func keyForPaper(paperID string) string {
	return strings.TrimPrefix(fmt.Sprintf("papers/%s.pdf", paperID), "/")
}
