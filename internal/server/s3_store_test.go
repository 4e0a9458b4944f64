package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockS3Client records objects in memory.
type MockS3Client struct {
	objects map[string][]byte
}

func NewMockS3Client() *MockS3Client {
	return &MockS3Client{objects: make(map[string][]byte)}
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*params.Key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", *params.Key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3BlobStoreRoundTrip(t *testing.T) {
	store := &S3BlobStore{Client: NewMockS3Client(), Bucket: "test-bucket"}

	content := []byte("encrypted message body")
	if err := store.Save("6650a1b2c3d4e5f60708", content); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get("6650a1b2c3d4e5f60708")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Get = %q, want %q", got, content)
	}

	if err := store.Delete("6650a1b2c3d4e5f60708"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("6650a1b2c3d4e5f60708"); err == nil {
		t.Error("Get after Delete succeeded, want error")
	}
}

func TestFileStoreWithS3Blobs(t *testing.T) {
	blobs := &S3BlobStore{Client: NewMockS3Client(), Bucket: "test-bucket"}
	store, err := NewFileStore(t.TempDir(), blobs)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if store.blobs != blobs {
		t.Error("file store did not adopt the provided blob store")
	}
}
