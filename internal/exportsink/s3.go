package exportsink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JonMunkholm/formsvc/internal/config"
)

// PutObjectAPI is the part of *s3.Client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client builds a client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
// Endpoint and UsePathStyle allow S3-compatible stores such as MinIO.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Sink uploads the export as a single object. PutObject needs a seekable
// body, so the export is spooled to a temporary file first.
type S3Sink struct {
	Client PutObjectAPI
	Bucket string
	Key    string
}

func (s S3Sink) String() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

func (s S3Sink) Deliver(ctx context.Context, src Source) (int64, error) {
	tmp, err := os.CreateTemp("", "forms-export-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	n, err := src.Stream(ctx, tmp)
	if err != nil {
		return n, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return n, fmt.Errorf("rewind spool file: %w", err)
	}

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.Key),
		Body:          tmp,
		ContentLength: aws.Int64(n),
		ContentType:   aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return n, fmt.Errorf("put %s: %w", s, err)
	}
	return n, nil
}

// Open returns the sink for a parsed destination, creating an S3 client from
// cfg when needed.
func Open(ctx context.Context, dest Destination, cfg config.S3Config) (Sink, error) {
	if !dest.IsS3() {
		return FileSink{Path: dest.Path}, nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return S3Sink{Client: client, Bucket: dest.Bucket, Key: dest.Key}, nil
}
