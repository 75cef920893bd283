package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"transfer-lab/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Sink streams everything written to it into one S3 object. The upload
// runs concurrently with the writes through a pipe, so a download can be
// mirrored without ever buffering the whole object.
type S3Sink struct {
	log  *slog.Logger
	pw   *io.PipeWriter
	done chan error
}

func NewS3Sink(ctx context.Context, log *slog.Logger, client manager.UploadAPIClient,
	bucket, key, contentType string) *S3Sink {
	pr, pw := io.Pipe()
	uploader := manager.NewUploader(client)
	done := make(chan error, 1)

	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String(contentType),
		})
		// Unblocks a writer stuck in Write when the upload dies early.
		_ = pr.CloseWithError(err)
		done <- err
	}()

	log.Info("mirroring to s3", slog.String("bucket", bucket), slog.String("key", key))
	return &S3Sink{log: log, pw: pw, done: done}
}

func (s *S3Sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// Close finishes the stream and waits for S3 to acknowledge the object.
func (s *S3Sink) Close() error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	if err := <-s.done; err != nil {
		return fmt.Errorf("%w: s3 upload: %v", errors.ErrIO, err)
	}
	return nil
}

// Abort tears the mirror down after a failed download. The upload sees the
// broken pipe and gives up on the object.
func (s *S3Sink) Abort() {
	_ = s.pw.CloseWithError(stderrors.New("download aborted"))
	if err := <-s.done; err != nil {
		s.log.Warn("aborted s3 mirror", slog.String("error", err.Error()))
	}
}

// ParseS3URL splits s3://bucket/path/key into bucket and key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: want s3://bucket/key, got %q", errors.ErrInvalidPayload, raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: missing object key in %q", errors.ErrInvalidPayload, raw)
	}
	return u.Host, key, nil
}
