// Package s3export uploads the streamlined research CSV to an S3 bucket.
package s3export

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader narrows the S3 client surface for mocking.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client from the default AWS configuration chain.
func NewClient(ctx context.Context, region string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Upload puts the CSV body at bucket/key with a text/csv content type.
func Upload(ctx context.Context, client Uploader, bucket, key string, body io.Reader) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// NewWriter returns an io.WriteCloser that streams into bucket/key. The
// upload runs in a goroutine fed by a pipe; Close flushes the stream and
// returns the upload's error.
func NewWriter(ctx context.Context, client Uploader, bucket, key string) io.WriteCloser {
	reader, writer := io.Pipe()
	w := &s3Writer{writer: writer, done: make(chan error, 1)}

	go func() {
		err := Upload(ctx, client, bucket, key, reader)
		// Unblock the writer side if the upload died early.
		reader.CloseWithError(err)
		w.done <- err
	}()

	return w
}

type s3Writer struct {
	writer *io.PipeWriter
	done   chan error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *s3Writer) Close() error {
	if err := w.writer.Close(); err != nil {
		return err
	}
	return <-w.done
}
