package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newOfflineClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client is required")

	_, err = New(newOfflineClient(t), Config{Bucket: " "})
	require.ErrorContains(t, err, "bucket name is required")
}

func TestNewDefaultsCacheControl(t *testing.T) {
	t.Parallel()

	store, err := New(newOfflineClient(t), Config{Bucket: "archive"})
	require.NoError(t, err)
	require.Equal(t, "archive", store.bucket)
	require.Contains(t, store.cacheControl, "immutable")

	store, err = New(newOfflineClient(t), Config{Bucket: "archive", CacheControl: "no-store"})
	require.NoError(t, err)
	require.Equal(t, "no-store", store.cacheControl)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newOfflineClient(t), Config{Bucket: "archive"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "/", "image/png", strings.NewReader("x"))
	require.ErrorContains(t, err, "path is required")
}
