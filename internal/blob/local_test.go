package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheaf-ai/sheaf/internal/testutil"
)

func newTestStore(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(t.TempDir(), testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewLocal() = %v", err)
	}
	return store
}

func TestLocal_UploadDownloadDelete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	content := []byte("%PDF-1.7 pretend document")

	if err := store.Upload(ctx, "docs/abc123.pdf", content); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	got, err := store.Download(ctx, "docs/abc123.pdf")
	if err != nil {
		t.Fatalf("Download() = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Download() = %q, want %q", got, content)
	}

	if err := store.Delete(ctx, "docs/abc123.pdf"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := store.Download(ctx, "docs/abc123.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() after delete = %v, want ErrNotFound", err)
	}

	// Deleting again stays quiet.
	if err := store.Delete(ctx, "docs/abc123.pdf"); err != nil {
		t.Errorf("second Delete() = %v", err)
	}
}

func TestLocal_OverwriteReplacesContent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if err := store.Upload(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("second Upload() = %v", err)
	}
	got, err := store.Download(ctx, "k")
	if err != nil {
		t.Fatalf("Download() = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Download() = %q, want overwritten content", got)
	}
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"",
		"..",
		"../outside",
		"docs/../../etc/passwd",
		"/etc/passwd",
	} {
		if err := store.Upload(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Upload(%q) = %v, want ErrInvalidKey", key, err)
		}
		if _, err := store.Download(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Download(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocal_MissingBlob(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.Download(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() = %v, want ErrNotFound", err)
	}
}

func TestLocal_NoPartialFilesAfterUpload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(dir, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewLocal() = %v", err)
	}
	if err := store.Upload(context.Background(), "a/b/c.txt", []byte("data")); err != nil {
		t.Fatalf("Upload() = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".txt" && filepath.Ext(e.Name()) != ".lock" {
			t.Errorf("leftover file %q in blob directory", e.Name())
		}
	}
}
