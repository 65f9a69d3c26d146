package collection_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/testutil"
)

func TestStore_CreateAndNameUniqueness(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := collection.NewStore(db.Pool, testutil.DiscardLogger())
	owner := uuid.New()

	first, err := store.Create(ctx, owner, "notes", "personal notes")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := store.Create(ctx, owner, "notes", ""); !errors.Is(err, collection.ErrNameTaken) {
		t.Errorf("duplicate Create() = %v, want ErrNameTaken", err)
	}
	if _, err := store.Create(ctx, owner, "   ", ""); !errors.Is(err, collection.ErrEmptyName) {
		t.Errorf("blank Create() = %v, want ErrEmptyName", err)
	}

	// Another owner may reuse the name.
	if _, err := store.Create(ctx, uuid.New(), "notes", ""); err != nil {
		t.Errorf("Create(other owner) = %v", err)
	}

	// Deleting frees the name for its owner.
	if _, err := store.SoftDelete(ctx, first.ID, owner); err != nil {
		t.Fatalf("SoftDelete() = %v", err)
	}
	if _, err := store.Create(ctx, owner, "notes", ""); err != nil {
		t.Errorf("Create(after delete) = %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := collection.NewStore(db.Pool, testutil.DiscardLogger())
	owner := uuid.New()

	c, err := store.Create(ctx, owner, "drafts", "")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if _, err := store.Create(ctx, owner, "final", ""); err != nil {
		t.Fatalf("Create() = %v", err)
	}

	newName := "drafts-2024"
	newDesc := "archived drafts"
	updated, err := store.Update(ctx, c.ID, owner, &newName, &newDesc)
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if updated.Name != newName || updated.Description != newDesc {
		t.Errorf("updated = %q / %q", updated.Name, updated.Description)
	}

	clash := "final"
	if _, err := store.Update(ctx, c.ID, owner, &clash, nil); !errors.Is(err, collection.ErrNameTaken) {
		t.Errorf("Update(to taken name) = %v, want ErrNameTaken", err)
	}

	if _, err := store.Update(ctx, uuid.New(), owner, &newName, nil); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestStore_ListWithStats(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := testutil.DiscardLogger()
	store := collection.NewStore(db.Pool, logger)
	docs := document.NewStore(db.Pool, logger)
	owner := uuid.New()

	c, err := store.Create(ctx, owner, "library", "")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	for i, size := range []int64{100, 250} {
		doc := &document.Document{
			OwnerID:      owner,
			CollectionID: c.ID,
			Filename:     string(rune('a'+i)) + ".txt",
			BlobKey:      uuid.NewString(),
			FileType:     ".txt",
			FileSize:     size,
		}
		if err := docs.Create(ctx, doc); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	list, err := store.List(ctx, owner)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d collections, want 1", len(list))
	}

	stats := list[0].Stats
	if stats.DocumentCount != 2 {
		t.Errorf("DocumentCount = %d, want 2", stats.DocumentCount)
	}
	if stats.TotalBytes != 350 {
		t.Errorf("TotalBytes = %d, want 350", stats.TotalBytes)
	}
	if stats.ByStatus[string(document.StatusUploaded)] != 2 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
}

func TestStore_SoftDeleteCascades(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := testutil.DiscardLogger()
	store := collection.NewStore(db.Pool, logger)
	docs := document.NewStore(db.Pool, logger)
	convs := conversation.NewStore(db.Pool, logger)
	owner := uuid.New()

	c, err := store.Create(ctx, owner, "to-remove", "")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	doc := &document.Document{
		OwnerID:      owner,
		CollectionID: c.ID,
		Filename:     "doomed.txt",
		BlobKey:      "blobs/doomed.txt",
		FileType:     ".txt",
		FileSize:     10,
	}
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if err := docs.ReplaceChunks(ctx, doc.ID, []document.Chunk{
		{Index: 0, Content: "chunk body", CharCount: 10, WordCount: 2},
	}); err != nil {
		t.Fatalf("ReplaceChunks() = %v", err)
	}

	conv, err := convs.Create(ctx, owner, "chat")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := convs.AttachCollection(ctx, conv.ID, owner, c.ID); err != nil {
		t.Fatalf("AttachCollection() = %v", err)
	}

	blobKeys, err := store.SoftDelete(ctx, c.ID, owner)
	if err != nil {
		t.Fatalf("SoftDelete() = %v", err)
	}
	if len(blobKeys) != 1 || blobKeys[0] != "blobs/doomed.txt" {
		t.Errorf("blob keys = %v", blobKeys)
	}

	if _, err := store.Get(ctx, c.ID, owner); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrNotFound", err)
	}

	gone, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get(document) = %v", err)
	}
	if !gone.Deleted || gone.Status != document.StatusDeleted {
		t.Errorf("document not soft-deleted: %+v", gone)
	}
	if n, _ := docs.CountChunks(ctx, doc.ID); n != 0 {
		t.Errorf("chunks remain: %d", n)
	}

	attached, err := convs.AttachedCollections(ctx, conv.ID)
	if err != nil {
		t.Fatalf("AttachedCollections() = %v", err)
	}
	if len(attached) != 0 {
		t.Errorf("conversation still has %d attachments", len(attached))
	}
}
