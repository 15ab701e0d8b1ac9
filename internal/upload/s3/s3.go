// Package s3 uploads reports to an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"monthbook/internal/upload"
)

const (
	// Target is the name recorded for S3 uploads.
	Target = "s3"

	linkExpiry = 24 * time.Hour
)

// Config selects the bucket and, optionally, static credentials and a custom
// endpoint (MinIO, LocalStack).
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Uploader puts report files under Prefix in Bucket.
type Uploader struct {
	cfg    Config
	client *upload.Lazy[*s3.Client]
}

var _ upload.Uploader = (*Uploader)(nil)

// New returns an Uploader for cfg. The AWS client is built on first upload.
func New(cfg Config) *Uploader {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	return &Uploader{
		cfg: cfg,
		client: upload.NewLazy(func(ctx context.Context) (*s3.Client, error) {
			return newClient(ctx, cfg)
		}),
	}
}

func (u *Uploader) Target() string { return Target }

// Enabled is true when a bucket is configured.
func (u *Uploader) Enabled() bool { return u.cfg.Bucket != "" }

// Key returns the object key for a file name.
func (u *Uploader) Key(name string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload stores obj and returns its key with a presigned download link.
func (u *Uploader) Upload(ctx context.Context, obj upload.Object) (upload.Result, error) {
	if !u.Enabled() {
		return upload.Result{}, upload.ErrDisabled
	}
	client, err := u.client.Get(ctx)
	if err != nil {
		return upload.Result{}, fmt.Errorf("%w: %v", upload.ErrUnavailable, err)
	}

	f, err := os.Open(obj.Path)
	if err != nil {
		return upload.Result{}, fmt.Errorf("open %s: %w", obj.Path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return upload.Result{}, fmt.Errorf("stat %s: %w", obj.Path, err)
	}

	key := u.Key(obj.Name)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(obj.ContentType),
		ContentLength: aws.Int64(st.Size()),
	})
	if err != nil {
		return upload.Result{}, fmt.Errorf("put object %s: %w", key, err)
	}

	res := upload.Result{Target: Target, RemoteID: key, SizeBytes: st.Size()}
	presigned, err := s3.NewPresignClient(client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(linkExpiry))
	if err == nil {
		res.Link = presigned.URL
	}
	return res, nil
}

func newClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if cfg.Endpoint == "" {
		return s3.NewFromConfig(awsCfg), nil
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	}), nil
}
