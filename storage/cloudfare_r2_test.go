package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	put     *s3.PutObjectInput
	body    string
	deleted string
	err     error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestUploadTrimsETagAndBuildsLocation(t *testing.T) {
	objects := &fakeObjects{}
	u := newR2Uploader(objects, "ladder", "https://cdn.example.com/exports/", slog.New(slog.DiscardHandler))

	res, err := u.Upload(context.Background(), "snapshots/1.json", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, "abc123", res.ETag)
	assert.Equal(t, "https://cdn.example.com/exports/snapshots/1.json", res.Location)
	assert.Equal(t, "ladder", aws.ToString(objects.put.Bucket))
	assert.Equal(t, "application/json", aws.ToString(objects.put.ContentType))
	assert.Equal(t, `{"a":1}`, objects.body)
}

func TestUploadWrapsClientError(t *testing.T) {
	boom := errors.New("boom")
	u := newR2Uploader(&fakeObjects{err: boom}, "ladder", "https://cdn.example.com", slog.New(slog.DiscardHandler))

	_, err := u.Upload(context.Background(), "k", "text/plain", strings.NewReader("x"))
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, u.Delete(context.Background(), "k"), boom)
}

func TestGetPublicURL(t *testing.T) {
	u := newR2Uploader(&fakeObjects{}, "ladder", "https://cdn.example.com", slog.New(slog.DiscardHandler))
	assert.Equal(t, "https://cdn.example.com/a/b.json", u.GetPublicURL("/a/b.json"))
	assert.Empty(t, u.GetPublicURL(""))
}

func TestNewUploaderRequiresConfig(t *testing.T) {
	_, err := NewCloudflareR2Uploader(context.Background(), CloudflareR2UploaderConfig{AccountID: "x"}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
