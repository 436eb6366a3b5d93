package sync

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const ndjsonContentType = "application/x-ndjson"

// S3Options locates the export object. Endpoint switches to path-style
// addressing for MinIO and other S3-compatible stores.
type S3Options struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
}

// objectPutter is the slice of the S3 API the destination needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination overwrites a single object with each export.
type S3Destination struct {
	api  objectPutter
	opts S3Options
}

func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("s3 destination needs a bucket and key")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{api: api, opts: opts}, nil
}

func (d *S3Destination) Name() string {
	return fmt.Sprintf("s3://%s/%s", d.opts.Bucket, d.opts.Key)
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(d.opts.Bucket),
		Key:           aws.String(d.opts.Key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ndjsonContentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{"lines": strconv.Itoa(bytes.Count(data, []byte{'\n'}))},
	}
	if _, err := d.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("uploading %s: %w", d.Name(), err)
	}
	return nil
}
