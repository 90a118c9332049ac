package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

// mockS3Client records uploads in memory
type mockS3Client struct {
	objects      map[string][]byte
	metadata     map[string]map[string]string
	bucketExists bool
	putErr       error
	created      bool
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects:      make(map[string][]byte),
		metadata:     make(map[string]map[string]string),
		bucketExists: true,
	}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Key)
	m.objects[key] = data
	m.metadata[key] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !m.bucketExists {
		return nil, errors.New("NotFound: bucket does not exist")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.created = true
	m.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func archivedSnapshot() *snapshot.Snapshot {
	snap := testSnapshot("run-abc", time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC))
	snap.ID = 12
	return snap
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "snapshots/2025/03/12-run-abc.json", ArchiveKey(archivedSnapshot()))
}

func TestFileArchiver(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewFileArchiver(dir)
	require.NoError(t, err)

	snap := archivedSnapshot()
	location, err := archiver.Archive(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "snapshots", "2025", "03", "12-run-abc.json"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	decoded, err := snapshot.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestS3Archiver_Archive(t *testing.T) {
	client := newMockS3Client()
	archiver := newS3Archiver(client, "history", "/prod/")

	snap := archivedSnapshot()
	location, err := archiver.Archive(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "s3://history/prod/snapshots/2025/03/12-run-abc.json", location)

	key := "prod/snapshots/2025/03/12-run-abc.json"
	require.Contains(t, client.objects, key)
	assert.Equal(t, "run-abc", client.metadata[key]["run-id"])
	assert.Len(t, client.metadata[key]["checksum-sha256"], 64)

	decoded, err := snapshot.Unmarshal(client.objects[key])
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, decoded.RunID)
}

func TestS3Archiver_UploadFailure(t *testing.T) {
	client := newMockS3Client()
	client.putErr = errors.New("AccessDenied")
	archiver := newS3Archiver(client, "history", "")

	_, err := archiver.Archive(context.Background(), archivedSnapshot())
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestS3Archiver_EnsureBucket(t *testing.T) {
	client := newMockS3Client()
	client.bucketExists = false
	archiver := newS3Archiver(client, "history", "")

	require.Error(t, archiver.HealthCheck(context.Background()))
	require.NoError(t, archiver.ensureBucket(context.Background()))
	assert.True(t, client.created)
	assert.NoError(t, archiver.HealthCheck(context.Background()))
}

func TestIsBucketAlreadyExistsError(t *testing.T) {
	assert.True(t, isBucketAlreadyExistsError(errors.New("api error BucketAlreadyOwnedByYou: yours")))
	assert.False(t, isBucketAlreadyExistsError(errors.New("AccessDenied")))
	assert.False(t, isBucketAlreadyExistsError(nil))
}

func TestNewArchiver(t *testing.T) {
	a, err := NewArchiver(Config{})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = NewArchiver(Config{ArchiveDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileArchiver{}, a)
}
