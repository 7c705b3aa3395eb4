package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"verisay/go-client/internal/testutil/fsperm"
	"verisay/go-client/pkg/models"
)

func openTestDB(t *testing.T) *DocumentStore {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewDocumentStore(db)
}

func TestDocumentStoreSetGetUpdate(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	if _, ok, err := store.GetUserDocument(ctx, "uid-1"); err != nil || ok {
		t.Fatalf("expected missing document, ok=%v err=%v", ok, err)
	}

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	if err := store.SetUserDocument(ctx, "uid-1", models.UserDocument{
		Username:  "alice",
		Email:     "alice@example.test",
		CreatedAt: created,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.UpdateUserProfile(ctx, "uid-1", "Alice A.", "blob://profilePictures/uid-1.jpg"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok, err := store.GetUserDocument(ctx, "uid-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	want := models.UserDocument{
		Username:  "Alice A.",
		Email:     "alice@example.test",
		PhotoURL:  "blob://profilePictures/uid-1.jpg",
		CreatedAt: created,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentStoreUpdateCreatesMissingDocument(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	if err := store.UpdateUserProfile(ctx, "uid-2", "bob", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok, err := store.GetUserDocument(ctx, "uid-2")
	if err != nil || !ok || got.Username != "bob" {
		t.Fatalf("unexpected document %+v ok=%v err=%v", got, ok, err)
	}
	if err := store.UpdateUserProfile(ctx, " ", "x", ""); !errors.Is(err, ErrDocumentIDEmpty) {
		t.Fatalf("expected ErrDocumentIDEmpty, got %v", err)
	}
}

func TestFeedStoreOrdersNewestFirstPerOwner(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	feed := NewFeedStore(db)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.FeedEntry{
		{
			Record:      models.AgreementRecord{ID: 41, OwnerID: 7, Type: models.AgreementLoan, Status: models.AgreementInProgress, CreatedAt: base},
			Attachments: []models.AttachmentOutcome{{Group: models.AttachmentGroupAudio, Uploaded: true}, {Group: models.AttachmentGroupFaces, Uploaded: true}},
			SubmittedAt: base,
		},
		{
			Record:      models.AgreementRecord{ID: 42, OwnerID: 7, Type: models.AgreementRental, Status: models.AgreementInProgress, CreatedAt: base.Add(time.Hour)},
			Attachments: []models.AttachmentOutcome{{Group: models.AttachmentGroupAudio, Uploaded: true}, {Group: models.AttachmentGroupFaces, Error: "status 500"}},
			SubmittedAt: base.Add(time.Hour),
		},
		{
			Record:      models.AgreementRecord{ID: 43, OwnerID: 8, Type: models.AgreementCustom, Status: models.AgreementInProgress, CreatedAt: base},
			SubmittedAt: base,
		},
	}
	for _, entry := range entries {
		if err := feed.SaveFeedEntry(ctx, entry); err != nil {
			t.Fatalf("save %d: %v", entry.Record.ID, err)
		}
	}

	got, err := feed.ListFeedEntries(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for owner 7, got %d", len(got))
	}
	if got[0].Record.ID != 42 || got[1].Record.ID != 41 {
		t.Fatalf("unexpected order: %d, %d", got[0].Record.ID, got[1].Record.ID)
	}
	if !got[0].Incomplete() || got[1].Incomplete() {
		t.Fatalf("completeness flags wrong: %+v", got)
	}
	if got[0].Outcome(models.AttachmentGroupFaces).Error != "status 500" {
		t.Fatalf("faces error lost: %+v", got[0].Attachments)
	}
}

func TestFeedStoreOrdersSubSecondSubmissions(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	feed := NewFeedStore(db)

	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	submitted := map[int64]time.Time{
		10: base,
		11: base.Add(100 * time.Millisecond),
		12: base.Add(123 * time.Millisecond),
		13: base.Add(500 * time.Millisecond),
	}
	for id, at := range submitted {
		entry := models.FeedEntry{
			Record:      models.AgreementRecord{ID: id, OwnerID: 7, Type: models.AgreementRental, Status: models.AgreementInProgress, CreatedAt: at},
			SubmittedAt: at,
		}
		if err := feed.SaveFeedEntry(ctx, entry); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}

	got, err := feed.ListFeedEntries(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make([]int64, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.Record.ID)
	}
	if diff := cmp.Diff([]int64{13, 12, 11, 10}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if !got[0].SubmittedAt.Equal(submitted[13]) {
		t.Fatalf("submitted_at lost precision: %v", got[0].SubmittedAt)
	}
}

func TestLocalBlobStoreEncryptsAndResolvesHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir, "phrase")
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	payload := []byte("\xff\xd8\xff jpeg bytes")
	handle, err := store.PutObject(ctx, "profilePictures/uid-1.jpg", "image/jpeg", payload)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if handle != "blob://profilePictures/uid-1.jpg" {
		t.Fatalf("unexpected handle %q", handle)
	}
	if !models.IsDurableHandle(handle) {
		t.Fatalf("handle must be durable: %q", handle)
	}
	onDisk := filepath.Join(dir, "profilePictures", "uid-1.jpg")
	raw, err := os.ReadFile(onDisk)
	if err != nil {
		t.Fatalf("read raw blob: %v", err)
	}
	if strings.Contains(string(raw), "jpeg bytes") {
		t.Fatal("blob must be encrypted at rest")
	}
	fsperm.AssertPrivateFilePerm(t, onDisk)

	got, err := store.GetObject(ctx, handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
	if _, err := store.GetObject(ctx, "blob://missing.jpg"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestLocalBlobStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	for _, p := range []string{"", "/etc/passwd", "../up.jpg", "a/../../up.jpg", `a\b.jpg`} {
		if _, err := store.PutObject(context.Background(), p, "image/jpeg", []byte("x")); !errors.Is(err, ErrInvalidBlobPath) {
			t.Fatalf("path %q: expected ErrInvalidBlobPath, got %v", p, err)
		}
	}
}

func TestSessionStoreRoundtripAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(filepath.Join(dir, "session.json"), "phrase")

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected no session, ok=%v err=%v", ok, err)
	}
	in := models.Session{
		UserID:    7,
		AuthUID:   "uid-7",
		Email:     "u7@example.test",
		IDToken:   "id-token-7",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	fsperm.AssertPrivateDirPerm(t, dir)
	fsperm.AssertPrivateFilePerm(t, filepath.Join(dir, "session.json"))

	raw, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if strings.Contains(string(raw), "id-token-7") {
		t.Fatal("session token stored in plaintext")
	}

	out, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("session still present after delete")
	}
}
