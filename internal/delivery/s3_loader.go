package delivery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API — подмножество s3.Client, нужное для чтения медиа.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader читает медиа из S3 по ссылкам вида "s3://bucket/key".
type S3Loader struct {
	client S3API
	// bucket по умолчанию для ссылок "s3:///key"
	bucket string
}

// S3Config — параметры подключения к S3.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // для MinIO / LocalStack
}

// NewS3Loader создаёт S3Loader с клиентом из стандартной цепочки AWS credentials.
func NewS3Loader(ctx context.Context, cfg S3Config) (*S3Loader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3LoaderWithClient(client, cfg.Bucket), nil
}

// NewS3LoaderWithClient создаёт S3Loader с готовым клиентом.
func NewS3LoaderWithClient(client S3API, bucket string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket}
}

// Load читает объект.
func (l *S3Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := l.parseRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("read s3 object %s/%s: %w", bucket, key, err)
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("s3 object %s/%s exceeds %d bytes", bucket, key, maxMediaSize)
	}
	return data, nil
}

// parseRef разбирает "s3://bucket/key".
func (l *S3Loader) parseRef(ref string) (string, string, error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		bucket = l.bucket
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref)
	}
	return bucket, key, nil
}
