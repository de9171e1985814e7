package s3util

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
	key     string
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	f.key = *params.Key
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *params.Key + "?sig=1"}, nil
}

func TestUploadBytes(t *testing.T) {
	put := &fakePutter{}
	data := []byte("png-bytes")

	if err := UploadBytes(context.Background(), put, "memes-bucket", "memes/meme-1.png", "image/png", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *put.input.Bucket != "memes-bucket" || *put.input.Key != "memes/meme-1.png" {
		t.Errorf("unexpected target %s/%s", *put.input.Bucket, *put.input.Key)
	}
	if *put.input.ContentType != "image/png" {
		t.Errorf("expected image/png, got %s", *put.input.ContentType)
	}
	if *put.input.ContentLength != int64(len(data)) {
		t.Errorf("expected content length %d, got %d", len(data), *put.input.ContentLength)
	}
	if *put.input.Tagging != "Project=slop-meme-generator" {
		t.Errorf("expected project tag, got %s", *put.input.Tagging)
	}
	if string(put.body) != "png-bytes" {
		t.Errorf("expected body to be uploaded, got %q", put.body)
	}
}

func TestUploadBytes_Error(t *testing.T) {
	cause := errors.New("access denied")
	err := UploadBytes(context.Background(), &fakePutter{err: cause}, "b", "k", "image/png", nil)
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	p := &fakePresigner{}
	url, err := GeneratePresignedURL(context.Background(), p, "b", "memes/meme-1.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://bucket.example/memes/meme-1.png?sig=1" {
		t.Errorf("unexpected URL %s", url)
	}
	if p.expires != 15*time.Minute {
		t.Errorf("expected expiry to be applied, got %v", p.expires)
	}
}
