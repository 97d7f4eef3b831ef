package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"property-analyzer/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "jobs/j1/report.md", want: "jobs/j1/report.md"},
		{name: "simple prefix", prefix: "root", key: "jobs/j1/report.md", want: "root/jobs/j1/report.md"},
		{name: "prefix trailing slash", prefix: "root/", key: "jobs/j1/report.md", want: "root/jobs/j1/report.md"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/jobs/j1/report.md", want: "root/jobs/j1/report.md"},
		{name: "nested prefix", prefix: "root/sub", key: "jobs/j1/report.md", want: "root/sub/jobs/j1/report.md"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	f.lastPut = params
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestSaveWithKeyAppliesPrefixAndEncryption(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newWithClient(fake, "bucket", "/analyzer/", "kms-1")

	n, err := store.SaveWithKey(context.Background(), "jobs/j1/pdfs/deed.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes, got %d", n)
	}
	if _, ok := fake.objects["analyzer/jobs/j1/pdfs/deed.pdf"]; !ok {
		t.Fatalf("expected prefixed key, got %v", fake.objects)
	}
	if fake.lastPut.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected kms encryption, got %q", fake.lastPut.ServerSideEncryption)
	}
}

func TestOpenMissingKeyMapsToNotFound(t *testing.T) {
	store := newWithClient(&fakeS3{objects: map[string][]byte{}}, "bucket", "", "")

	_, err := store.Open(context.Background(), "jobs/j1/report.md")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
