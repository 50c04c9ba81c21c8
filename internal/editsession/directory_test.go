package editsession

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDirectory(ttl time.Duration, now *time.Time) *Directory {
	return NewDirectory(DirectoryOptions{
		TTL:    ttl,
		Now:    func() time.Time { return *now },
		Logger: zerolog.Nop(),
	})
}

func TestDirectoryCreateAndGet(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(0, &now)

	session, err := dir.Create([]byte("img"), "task-1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if session.ID() == "" {
		t.Fatal("session id must not be empty")
	}
	got, err := dir.Get(session.ID())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != session {
		t.Fatal("Get must return the same session instance")
	}
	if dir.Len() != 1 {
		t.Fatalf("directory length mismatch: %d", dir.Len())
	}
}

func TestDirectoryCreateRejectsEmptySource(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(0, &now)
	if _, err := dir.Create(nil, "task-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDirectoryUnknownIDIsNotFound(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(time.Hour, &now)
	if _, err := dir.Get("no-such-id"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := dir.Close("no-such-id"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Close on unknown id: got %v want ErrSessionNotFound", err)
	}
}

func TestDirectoryCloseIsDistinguishableOnRepeat(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(time.Hour, &now)
	session, err := dir.Create([]byte("img"), "")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := dir.Close(session.ID()); err != nil {
		t.Fatalf("first Close returned error: %v", err)
	}
	if err := dir.Close(session.ID()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second Close: got %v want ErrSessionClosed", err)
	}
	if _, err := dir.Get(session.ID()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Get after close: got %v want ErrSessionClosed", err)
	}
}

func TestDirectoryExpiryIsDistinctFromNotFound(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(30*time.Minute, &now)
	session, err := dir.Create([]byte("img"), "")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if reaped := dir.Sweep(); reaped != 1 {
		t.Fatalf("Sweep reaped %d sessions, want 1", reaped)
	}
	if _, err := dir.Get(session.ID()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Get after expiry: got %v want ErrSessionExpired", err)
	}
	if !session.Closed() {
		t.Fatal("reaped session must be closed")
	}

	// After another full TTL window the tombstone is pruned and the id
	// reads as never having existed.
	now = now.Add(31 * time.Minute)
	dir.Sweep()
	if _, err := dir.Get(session.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after tombstone pruning: got %v want ErrSessionNotFound", err)
	}
}

func TestDirectoryGetRefreshesIdleClock(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(30*time.Minute, &now)
	session, err := dir.Create([]byte("img"), "")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	now = now.Add(20 * time.Minute)
	if _, err := dir.Get(session.ID()); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	now = now.Add(20 * time.Minute)
	if reaped := dir.Sweep(); reaped != 0 {
		t.Fatalf("session touched 20 minutes ago must not be reaped, got %d", reaped)
	}
	now = now.Add(31 * time.Minute)
	if reaped := dir.Sweep(); reaped != 1 {
		t.Fatalf("idle session must be reaped, got %d", reaped)
	}
}

func TestDirectorySweepDisabledWithoutTTL(t *testing.T) {
	now := time.Now()
	dir := newTestDirectory(0, &now)
	if _, err := dir.Create([]byte("img"), ""); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if reaped := dir.Sweep(); reaped != 0 {
		t.Fatalf("sweep with TTL disabled reaped %d", reaped)
	}
}
