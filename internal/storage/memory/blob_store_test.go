package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "shots/1/abc.png", "image/png", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://shots/1/abc.png" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, contentType, ok := store.Object("shots/1/abc.png")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "image/png" {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	if _, _, ok := NewBlobStore().Object("nope"); ok {
		t.Fatal("expected missing object")
	}
}
