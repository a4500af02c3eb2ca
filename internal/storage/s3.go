package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"example.com/socialwall/internal/models"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config describes an S3 or S3-compatible endpoint.
type S3Config struct {
	Region         string
	Endpoint       string // empty for AWS
	PublicBaseURL  string // optional CDN or gateway in front of the buckets
	ForcePathStyle bool
}

// S3Client implements Storage on top of aws-sdk-go.
type S3Client struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	cfg      S3Config
}

// NewS3 builds a client from the default credential chain.
func NewS3(cfg S3Config) (*S3Client, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.ForcePathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3WithClient(s3.New(sess), cfg), nil
}

// NewS3WithClient wraps an existing S3 API client.
func NewS3WithClient(client s3iface.S3API, cfg S3Config) *S3Client {
	return &S3Client{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		cfg:      cfg,
	}
}

func (c *S3Client) Upload(ctx context.Context, bucket, key string, body io.Reader, opts UploadOptions) error {
	logg.Debug("storage", "uploading "+bucket+"/"+key)

	if !opts.Overwrite {
		exists, err := c.exists(ctx, bucket, key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s/%s: %w", bucket, key, models.ErrExists)
		}
	}

	input := &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := c.uploader.UploadWithContext(ctx, input); err != nil {
		logg.Error("storage", "Upload failed for "+bucket+"/"+key, err)
		return err
	}
	return nil
}

func (c *S3Client) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (c *S3Client) List(ctx context.Context, bucket, prefix string) ([]models.StoredFile, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var files []models.StoredFile
	err := c.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" {
				continue
			}
			files = append(files, models.StoredFile{
				Name:      name,
				Key:       key,
				Size:      aws.Int64Value(obj.Size),
				UpdatedAt: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		logg.Error("storage", "List failed for "+bucket+"/"+prefix, err)
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (c *S3Client) PublicURL(bucket, key string) string {
	escaped := escapeKey(key)
	switch {
	case c.cfg.PublicBaseURL != "":
		return strings.TrimRight(c.cfg.PublicBaseURL, "/") + "/" + bucket + "/" + escaped
	case c.cfg.Endpoint != "":
		base := strings.TrimRight(c.cfg.Endpoint, "/")
		if c.cfg.ForcePathStyle {
			return base + "/" + bucket + "/" + escaped
		}
		u, err := url.Parse(base)
		if err != nil || u.Host == "" {
			return base + "/" + bucket + "/" + escaped
		}
		u.Host = bucket + "." + u.Host
		return u.String() + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.cfg.Region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
