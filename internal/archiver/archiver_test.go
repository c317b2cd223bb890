package archiver

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient builds an *s3.Client with no network I/O behind it — enough
// to pass New's nil check without ever issuing a request, since the
// validation cases below return before any client method is called.
func testClient() *s3.Client {
	return s3.New(s3.Options{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}})
}

// These cases exercise the pieces of Archiver that don't require a live S3
// endpoint: key construction and config validation. The upload/download
// round trip against a real bucket is covered by archiver_integration_test.go.

func TestArchiver_ObjectKeyFormatsSequenceRangeSortable(t *testing.T) {
	a := &Archiver{}
	key := a.objectKey("FIXSESSION1", 1, 9)
	assert.Equal(t, "FIXSESSION1/00000000000000000001-00000000000000000009.flog", key)

	// zero-padding keeps lexicographic S3 listing order consistent with
	// sequence-number order for any reasonable session lifetime.
	lo := a.objectKey("S", 1, 1)
	hi := a.objectKey("S", 2, 2)
	assert.Less(t, lo, hi)
}

func TestArchiver_ObjectKeyHonorsPrefix(t *testing.T) {
	a := &Archiver{keyPrefix: "cold/"}
	key := a.objectKey("S", 1, 2)
	assert.Equal(t, "cold/S/00000000000000000001-00000000000000000002.flog", key)
}

func TestNew_RejectsMissingClient(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	require.Error(t, err)
}

func TestNew_RejectsMissingBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Client: testClient()})
	require.Error(t, err)
}

func TestNew_RejectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(ctx, Config{Client: testClient(), Bucket: "b"})
	require.ErrorIs(t, err, context.Canceled)
}
