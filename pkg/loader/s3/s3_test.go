package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeBucket struct {
	objects map[string]string
	calls   int
}

func (f *fakeBucket) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		path, fallback string
		bucket, key    string
		wantErr        bool
	}{
		{"s3://papers/2017/attention.pdf", "", "papers", "2017/attention.pdf", false},
		{"2017/attention.pdf", "default", "default", "2017/attention.pdf", false},
		{"/2017/attention.pdf", "default", "default", "2017/attention.pdf", false},
		{"2017/attention.pdf", "", "", "", true},
		{"s3://papers", "", "", "", true},
		{"s3:///key", "", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseLocation(tt.path, tt.fallback)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLocation(%q) err = %v", tt.path, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseLocation(%q) = %q, %q", tt.path, bucket, key)
		}
	}
}

func TestGetFileText(t *testing.T) {
	fake := &fakeBucket{objects: map[string]string{
		"default/a.pdf": "alpha",
		"other/b.pdf":   "beta",
	}}
	l := NewS3PaperLoader(fake, "default")
	ctx := context.Background()

	got, err := l.GetFileText(ctx, loader.PaperFile{PaperID: "p1", FilePath: "a.pdf"})
	if err != nil || string(got) != "alpha" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = l.GetFileText(ctx, loader.PaperFile{PaperID: "p2", FilePath: "s3://other/b.pdf"})
	if err != nil || string(got) != "beta" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := l.GetFileText(ctx, loader.PaperFile{PaperID: "p1", FilePath: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
	if _, err := l.GetFileText(ctx, loader.PaperFile{PaperID: "p3", FilePath: "missing.pdf"}); err == nil {
		t.Error("expected error for missing object")
	}
}
