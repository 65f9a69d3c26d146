package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/chunker"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/parser"
	"github.com/sheaf-ai/sheaf/internal/status"
	"github.com/sheaf-ai/sheaf/internal/task"
	"github.com/sheaf-ai/sheaf/internal/testutil"
)

type transition struct {
	to     document.Status
	detail *string
}

type fakeDocs struct {
	doc         *document.Document
	chunks      []*document.Chunk
	transitions []transition
	declineNext bool

	extractedText string
	extractedLang string
	stored        []document.Chunk
}

func (f *fakeDocs) Get(_ context.Context, id uuid.UUID) (*document.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, document.ErrNotFound
	}
	return f.doc, nil
}

func (f *fakeDocs) TransitionStatus(_ context.Context, _ uuid.UUID, from []document.Status, to document.Status, detail *string) (bool, error) {
	allowed := false
	for _, s := range from {
		if s == f.doc.Status {
			allowed = true
			break
		}
	}
	if f.declineNext || !allowed {
		f.declineNext = false
		return false, nil
	}
	f.doc.Status = to
	f.transitions = append(f.transitions, transition{to: to, detail: detail})
	return true, nil
}

func (f *fakeDocs) SetExtraction(_ context.Context, _ uuid.UUID, text string, _, _ int, language string) error {
	f.extractedText = text
	f.extractedLang = language
	return nil
}

func (f *fakeDocs) ReplaceChunks(_ context.Context, _ uuid.UUID, chunks []document.Chunk) error {
	f.stored = chunks
	return nil
}

func (f *fakeDocs) ChunksByDocument(context.Context, uuid.UUID) ([]*document.Chunk, error) {
	return f.chunks, nil
}

type fakeBlobs struct {
	data map[string][]byte
}

func (f *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := f.data[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

type fakeParser struct {
	result *parser.Result
	err    error
}

func (f *fakeParser) Supports(filename string) bool {
	return !strings.HasSuffix(filename, ".bin")
}

func (f *fakeParser) Parse(context.Context, string, []byte) (*parser.Result, error) {
	return f.result, f.err
}

type fakeSplitter struct{ chunks []chunker.Chunk }

func (f *fakeSplitter) Split(string) []chunker.Chunk { return f.chunks }

type fakeEmbedder struct {
	succeeded int
	err       error
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []*document.Chunk) (int, error) {
	return f.succeeded, f.err
}

type fakePublisher struct {
	events []status.Event
	users  []uuid.UUID
}

func (f *fakePublisher) Publish(userID uuid.UUID, ev status.Event) {
	f.users = append(f.users, userID)
	f.events = append(f.events, ev)
}

type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, name string, _ uuid.UUID) (uuid.UUID, error) {
	f.enqueued = append(f.enqueued, name)
	return uuid.New(), nil
}

type fixture struct {
	docs      *fakeDocs
	blobs     *fakeBlobs
	parser    *fakeParser
	splitter  *fakeSplitter
	embedder  *fakeEmbedder
	publisher *fakePublisher
	queue     *fakeEnqueuer
	ctrl      *Controller
}

func newFixture(doc *document.Document) *fixture {
	f := &fixture{
		docs:  &fakeDocs{doc: doc},
		blobs: &fakeBlobs{data: map[string][]byte{doc.BlobKey: []byte("file content")}},
		parser: &fakeParser{result: &parser.Result{
			Text:      "The quick brown fox jumps over the lazy dog. It repeats this daily.",
			PageCount: 2,
			WordCount: 13,
		}},
		splitter: &fakeSplitter{chunks: []chunker.Chunk{
			{Index: 0, Content: "The quick brown fox jumps over the lazy dog.", CharCount: 44, WordCount: 9},
			{Index: 1, Content: "It repeats this daily.", CharCount: 22, WordCount: 4},
		}},
		embedder:  &fakeEmbedder{},
		publisher: &fakePublisher{},
		queue:     &fakeEnqueuer{},
	}
	f.ctrl = New(f.docs, f.blobs, f.parser, f.splitter, f.embedder, f.publisher, f.queue, testutil.DiscardLogger())
	return f
}

func uploadedDoc() *document.Document {
	return &document.Document{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Filename: "report.pdf",
		BlobKey:  "blobs/report.pdf",
		Status:   document.StatusUploaded,
	}
}

func TestProcess_HappyPath(t *testing.T) {
	t.Parallel()

	doc := uploadedDoc()
	f := newFixture(doc)

	if err := f.ctrl.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process() = %v", err)
	}

	if doc.Status != document.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", doc.Status)
	}
	if f.docs.extractedText == "" || f.docs.extractedLang == "" {
		t.Errorf("extraction not stored: text=%q lang=%q", f.docs.extractedText, f.docs.extractedLang)
	}
	if len(f.docs.stored) != 2 {
		t.Fatalf("stored %d chunks, want 2", len(f.docs.stored))
	}
	if f.docs.stored[0].DocumentID != doc.ID || f.docs.stored[1].Index != 1 {
		t.Errorf("stored chunks = %+v", f.docs.stored)
	}

	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != task.NameIndex {
		t.Errorf("enqueued = %v, want indexing follow-up", f.queue.enqueued)
	}

	if len(f.publisher.events) != 2 {
		t.Fatalf("published %d events, want processing + completed", len(f.publisher.events))
	}
	done := f.publisher.events[1]
	if done.Status != document.StatusCompleted || done.Message != "Successfully processed 2 chunks" {
		t.Errorf("completed event = %+v", done)
	}
	if done.Data["chunks"] != 2 || done.Data["word_count"] != 13 {
		t.Errorf("completed event data = %v", done.Data)
	}
	for _, u := range f.publisher.users {
		if u != doc.OwnerID {
			t.Errorf("event published to %s, want owner %s", u, doc.OwnerID)
		}
	}
}

func TestProcess_UnsupportedFileStaysUploaded(t *testing.T) {
	t.Parallel()

	doc := uploadedDoc()
	doc.Filename = "firmware.bin"
	f := newFixture(doc)

	err := f.ctrl.Process(context.Background(), doc.ID)
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("Process() = %v, want ErrUnsupportedFile", err)
	}
	if doc.Status != document.StatusUploaded {
		t.Errorf("status = %s, want document untouched", doc.Status)
	}
	if len(f.docs.transitions) != 0 || len(f.publisher.events) != 0 {
		t.Errorf("transitions = %v, events = %v, want none", f.docs.transitions, f.publisher.events)
	}
}

func TestProcess_MissingDocumentIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(uploadedDoc())
	if err := f.ctrl.Process(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Process() on missing document = %v, want nil", err)
	}
}

func TestProcess_AnotherWorkerHoldsTheDocument(t *testing.T) {
	t.Parallel()

	doc := uploadedDoc()
	doc.Status = document.StatusProcessing
	f := newFixture(doc)

	if err := f.ctrl.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process() = %v, want silent skip", err)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("events = %v, want none", f.publisher.events)
	}
	if f.docs.extractedText != "" {
		t.Error("extraction ran despite claimed document")
	}
}

func TestProcess_DownloadFailureMarksFailed(t *testing.T) {
	t.Parallel()

	doc := uploadedDoc()
	f := newFixture(doc)
	f.blobs.data = nil

	if err := f.ctrl.Process(context.Background(), doc.ID); err == nil {
		t.Fatal("Process() = nil, want download error")
	}
	if doc.Status != document.StatusFailed {
		t.Errorf("status = %s, want FAILED", doc.Status)
	}
	last := f.docs.transitions[len(f.docs.transitions)-1]
	if last.detail == nil || !strings.Contains(*last.detail, "download failed") {
		t.Errorf("failure detail = %v", last.detail)
	}
	final := f.publisher.events[len(f.publisher.events)-1]
	if final.Status != document.StatusFailed {
		t.Errorf("final event = %+v", final)
	}
}

func TestProcess_ParseFailureMarksFailed(t *testing.T) {
	t.Parallel()

	doc := uploadedDoc()
	f := newFixture(doc)
	f.parser.result = nil
	f.parser.err = errors.New("damaged file structure")

	if err := f.ctrl.Process(context.Background(), doc.ID); err == nil {
		t.Fatal("Process() = nil, want parse error")
	}
	if doc.Status != document.StatusFailed {
		t.Errorf("status = %s, want FAILED", doc.Status)
	}
	last := f.docs.transitions[len(f.docs.transitions)-1]
	if last.detail == nil || !strings.Contains(*last.detail, "damaged file structure") {
		t.Errorf("failure detail = %v", last.detail)
	}
}

func indexableDoc(chunkCount int) (*document.Document, []*document.Chunk) {
	doc := uploadedDoc()
	doc.Status = document.StatusCompleted
	chunks := make([]*document.Chunk, chunkCount)
	for i := range chunks {
		chunks[i] = &document.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    fmt.Sprintf("chunk %d", i),
		}
	}
	return doc, chunks
}

func TestIndex_AllChunksSucceed(t *testing.T) {
	t.Parallel()

	doc, chunks := indexableDoc(3)
	f := newFixture(doc)
	f.docs.chunks = chunks
	f.embedder.succeeded = 3

	if err := f.ctrl.Index(context.Background(), doc.ID); err != nil {
		t.Fatalf("Index() = %v", err)
	}
	if doc.Status != document.StatusIndexed {
		t.Errorf("status = %s, want INDEXED", doc.Status)
	}
	final := f.publisher.events[len(f.publisher.events)-1]
	if final.Message != "Successfully indexed 3 chunks" {
		t.Errorf("final event message = %q", final.Message)
	}
}

func TestIndex_PartialSuccess(t *testing.T) {
	t.Parallel()

	doc, chunks := indexableDoc(4)
	f := newFixture(doc)
	f.docs.chunks = chunks
	f.embedder.succeeded = 3
	f.embedder.err = errors.New("quota exceeded")

	if err := f.ctrl.Index(context.Background(), doc.ID); err != nil {
		t.Fatalf("Index() = %v, partial success is not fatal", err)
	}
	if doc.Status != document.StatusPartiallyIndexed {
		t.Errorf("status = %s, want PARTIALLY_INDEXED", doc.Status)
	}

	wantMsg := "Partially indexed: 3/4 chunks succeeded. Some embeddings failed to generate."
	last := f.docs.transitions[len(f.docs.transitions)-1]
	if last.detail == nil || *last.detail != wantMsg {
		t.Errorf("detail = %v, want %q", last.detail, wantMsg)
	}
	final := f.publisher.events[len(f.publisher.events)-1]
	if final.Message != wantMsg {
		t.Errorf("final event message = %q", final.Message)
	}
}

func TestIndex_TotalFailure(t *testing.T) {
	t.Parallel()

	doc, chunks := indexableDoc(2)
	f := newFixture(doc)
	f.docs.chunks = chunks
	f.embedder.succeeded = 0
	f.embedder.err = errors.New("provider unreachable")

	if err := f.ctrl.Index(context.Background(), doc.ID); err == nil {
		t.Fatal("Index() = nil, want embedding error")
	}
	if doc.Status != document.StatusIndexingFailed {
		t.Errorf("status = %s, want INDEXING_FAILED", doc.Status)
	}
	last := f.docs.transitions[len(f.docs.transitions)-1]
	if last.detail == nil || *last.detail != "Embedding generation failed: provider unreachable" {
		t.Errorf("detail = %v", last.detail)
	}
}

func TestIndex_NoChunks(t *testing.T) {
	t.Parallel()

	doc, _ := indexableDoc(0)
	f := newFixture(doc)

	if err := f.ctrl.Index(context.Background(), doc.ID); err != nil {
		t.Fatalf("Index() = %v, want quiet no-op", err)
	}
	if doc.Status != document.StatusCompleted {
		t.Errorf("status = %s, want unchanged", doc.Status)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("events = %v, want none", f.publisher.events)
	}
}

func TestIndex_ReindexFromIndexed(t *testing.T) {
	t.Parallel()

	doc, chunks := indexableDoc(2)
	doc.Status = document.StatusIndexed
	f := newFixture(doc)
	f.docs.chunks = chunks
	f.embedder.succeeded = 2

	if err := f.ctrl.Index(context.Background(), doc.ID); err != nil {
		t.Fatalf("Index() = %v", err)
	}
	if doc.Status != document.StatusIndexed {
		t.Errorf("status = %s, want INDEXED again", doc.Status)
	}
}

func TestIndex_NotIndexableState(t *testing.T) {
	t.Parallel()

	doc, chunks := indexableDoc(2)
	doc.Status = document.StatusProcessing
	f := newFixture(doc)
	f.docs.chunks = chunks

	if err := f.ctrl.Index(context.Background(), doc.ID); err != nil {
		t.Fatalf("Index() = %v, want silent skip", err)
	}
	if doc.Status != document.StatusProcessing {
		t.Errorf("status = %s, want unchanged", doc.Status)
	}
}
