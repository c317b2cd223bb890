// Package archiver ships sealed session log segments to S3 for cold
// storage once they age out of the locally mmap'd logstore, and can
// restore a segment back to disk for replay during an audit or dispute.
package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fixengine/internal/telemetry"
)

// ErrNotFound is returned when a requested archive object doesn't exist.
var ErrNotFound = errors.New("archiver: object not found")

// Archiver uploads and retrieves sealed log segments from an S3 bucket.
//
// Retry Behavior: every failed upload is retried, whatever the error, up to
// maxRetries times with exponential backoff, mirroring the teacher's S3 content store retry policy.
type Archiver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	maxRetries        uint
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// Config configures an Archiver.
type Config struct {
	Client    *s3.Client
	Bucket    string
	KeyPrefix string

	MaxRetries        uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// New constructs an Archiver and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("archiver: S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archiver: bucket name is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("archiver: access bucket %q: %w", cfg.Bucket, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &Archiver{
		client:            cfg.Client,
		bucket:            cfg.Bucket,
		keyPrefix:         cfg.KeyPrefix,
		maxRetries:        maxRetries,
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: backoffMultiplier,
	}, nil
}

// objectKey returns the S3 key for a stream's sealed segment, named after
// the stream and the range of sequence numbers it covers so a later
// Fetch can be targeted without listing the bucket.
func (a *Archiver) objectKey(streamName string, fromSeq, toSeq int64) string {
	key := fmt.Sprintf("%s/%020d-%020d.flog", streamName, fromSeq, toSeq)
	if a.keyPrefix != "" {
		return a.keyPrefix + key
	}
	return key
}

// ArchiveSegment uploads a sealed log segment file to S3. The caller is
// responsible for deciding a segment is sealed (e.g. rotated out of the
// active logstore) before calling this.
func (a *Archiver) ArchiveSegment(ctx context.Context, streamName string, fromSeq, toSeq int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archiver: read segment %s: %w", path, err)
	}

	key := a.objectKey(streamName, fromSeq, toSeq)
	if err := a.putWithRetry(ctx, key, data); err != nil {
		return err
	}
	telemetry.Info("archived log segment", "stream", streamName, "from_seq", fromSeq, "to_seq", toSeq, "bytes", len(data))
	return nil
}

// FetchSegment downloads a sealed segment and writes it to destPath for
// replay (e.g. to answer a regulatory audit or resend request for a
// sequence range that has aged out of the local logstore).
func (a *Archiver) FetchSegment(ctx context.Context, streamName string, fromSeq, toSeq int64, destPath string) error {
	key := a.objectKey(streamName, fromSeq, toSeq)

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return ErrNotFound
		}
		return fmt.Errorf("archiver: get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("archiver: create directory for %s: %w", destPath, err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("archiver: create file %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("archiver: write file %s: %w", destPath, err)
	}
	return nil
}

func (a *Archiver) putWithRetry(ctx context.Context, key string, data []byte) error {
	backoff := a.initialBackoff
	var lastErr error
	for attempt := uint(0); attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * a.backoffMultiplier)
			if backoff > a.maxBackoff {
				backoff = a.maxBackoff
			}
		}

		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("archiver: put object %s after %d attempts: %w", key, a.maxRetries+1, lastErr)
}
