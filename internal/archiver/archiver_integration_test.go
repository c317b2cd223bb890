//go:build integration

package archiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// localstackHelper manages the Localstack container for archiver
// integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

// newLocalstackHelper starts a Localstack container or connects to an
// existing one.
func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		helper.createClient(t)
		return helper
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	helper.createClient(t)
	return helper
}

func (lh *localstackHelper) createClient(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
}

func (lh *localstackHelper) createBucket(t *testing.T, bucketName string) {
	t.Helper()
	ctx := context.Background()

	_, err := lh.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
}

func (lh *localstackHelper) cleanupBucket(bucketName string) {
	ctx := context.Background()

	listResp, _ := lh.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
	if listResp != nil {
		for _, obj := range listResp.Contents {
			_, _ = lh.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
		}
	}
	_, _ = lh.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
}

func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		_ = lh.container.Terminate(context.Background())
	}
}

// TestArchiver_Integration exercises ArchiveSegment and FetchSegment
// against a real S3-compatible service (Localstack via testcontainers).
func TestArchiver_Integration(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucket := "fixengine-archiver-test"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	a, err := New(ctx, Config{Client: helper.client, Bucket: bucket})
	require.NoError(t, err)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "session.flog")
	require.NoError(t, os.WriteFile(srcPath, []byte("sealed segment payload"), 0644))

	require.NoError(t, a.ArchiveSegment(ctx, "FIXSESSION1", 1, 100, srcPath))

	destPath := filepath.Join(t.TempDir(), "restored.flog")
	require.NoError(t, a.FetchSegment(ctx, "FIXSESSION1", 1, 100, destPath))

	restored, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "sealed segment payload", string(restored))
}

// TestArchiver_FetchSegmentMissingReturnsErrNotFound confirms the
// aws-sdk-go-v2 NoSuchKey error maps to the package sentinel.
func TestArchiver_FetchSegmentMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	bucket := "fixengine-archiver-missing-test"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	a, err := New(ctx, Config{Client: helper.client, Bucket: bucket})
	require.NoError(t, err)

	err = a.FetchSegment(ctx, "NOSUCHSESSION", 1, 2, filepath.Join(t.TempDir(), "out.flog"))
	require.ErrorIs(t, err, ErrNotFound)
}
