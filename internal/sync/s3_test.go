package sync

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination_Write(t *testing.T) {
	api := &fakePutter{}
	d := &S3Destination{api: api, opts: S3Options{Bucket: "timelines", Key: "althist/u.jsonl"}}

	if got := d.Name(); got != "s3://timelines/althist/u.jsonl" {
		t.Errorf("Name = %q", got)
	}
	data := []byte("{\"day_index\":1}\n{\"day_index\":2}\n")
	if err := d.Write(context.Background(), data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if aws.ToString(api.in.Bucket) != "timelines" || aws.ToString(api.in.Key) != "althist/u.jsonl" {
		t.Errorf("wrong object %s/%s", aws.ToString(api.in.Bucket), aws.ToString(api.in.Key))
	}
	if aws.ToString(api.in.ContentType) != ndjsonContentType {
		t.Errorf("ContentType = %q", aws.ToString(api.in.ContentType))
	}
	if aws.ToInt64(api.in.ContentLength) != int64(len(data)) || string(api.body) != string(data) {
		t.Errorf("body mismatch: %q", api.body)
	}
	if api.in.Metadata["lines"] != "2" {
		t.Errorf("lines metadata = %q", api.in.Metadata["lines"])
	}
}

func TestS3Destination_WriteError(t *testing.T) {
	boom := errors.New("access denied")
	d := &S3Destination{api: &fakePutter{err: boom}, opts: S3Options{Bucket: "b", Key: "k"}}
	if err := d.Write(context.Background(), []byte("{}\n")); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewS3Destination_RequiresBucketAndKey(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), S3Options{Bucket: "b"}); err == nil {
		t.Fatal("expected error without key")
	}
}
