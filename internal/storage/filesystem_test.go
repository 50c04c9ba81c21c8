package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "sessions/abc/original.png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if key != "sessions/abc/original.png" {
		t.Fatalf("unexpected key: %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("data mismatch: %v", data)
	}
}

func TestFileStoreReadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if _, err := store.Read(context.Background(), "nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if _, err := store.Write(context.Background(), "../escape.png", []byte("x")); err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestFileStoreRemoveAll(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Write(ctx, "sessions/s1/a.png", []byte("a")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := store.Write(ctx, "sessions/s1/b.png", []byte("b")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := store.RemoveAll(ctx, "sessions/s1"); err != nil {
		t.Fatalf("RemoveAll returned error: %v", err)
	}
	if _, err := store.Read(ctx, "sessions/s1/a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after RemoveAll, got %v", err)
	}
}
