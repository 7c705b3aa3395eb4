package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeBackend struct {
	log       *callLog
	createID  int64
	createErr error
	audioErr  error
	facesErr  error
	block     chan struct{}
	entered   chan struct{}

	audioID int64
	facesID int64
	drafts  []models.AgreementDraft
}

func (f *fakeBackend) CreateAgreement(_ context.Context, draft models.AgreementDraft) (models.AgreementRecord, error) {
	f.log.add("create")
	f.drafts = append(f.drafts, draft)
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.createErr != nil {
		return models.AgreementRecord{}, f.createErr
	}
	return models.AgreementRecord{ID: f.createID, OwnerID: draft.OwnerID, Type: draft.Type, Status: draft.Status, CreatedAt: draft.CreatedAt}, nil
}

func (f *fakeBackend) UploadAudio(_ context.Context, agreementID int64, _ models.CaptureResult) error {
	f.log.add("audio")
	f.audioID = agreementID
	return f.audioErr
}

func (f *fakeBackend) UploadFaces(_ context.Context, agreementID int64, _, _ models.CaptureResult) error {
	f.log.add("faces")
	f.facesID = agreementID
	return f.facesErr
}

type fakeFeed struct {
	entries []models.FeedEntry
	err     error
}

func (f *fakeFeed) SaveFeedEntry(_ context.Context, entry models.FeedEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeFeed) ListFeedEntries(_ context.Context, ownerID int64) ([]models.FeedEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.FeedEntry
	for _, e := range f.entries {
		if e.Record.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) StepStarted(step string) { r.events = append(r.events, "start:"+step) }

func (r *recordingObserver) StepFinished(step string, err error) {
	if err != nil {
		r.events = append(r.events, "fail:"+step)
		return
	}
	r.events = append(r.events, "done:"+step)
}

type fakeMetrics struct {
	mu          sync.Mutex
	submissions map[string]int
	attachments map[string]int
	steps       []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{submissions: map[string]int{}, attachments: map[string]int{}}
}

func (m *fakeMetrics) RecordSubmission(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[outcome]++
}

func (m *fakeMetrics) RecordAttachment(group, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[group+"/"+outcome]++
}

func (m *fakeMetrics) ObserveStep(step string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func validInputs() (*models.AgreementDraft, *models.CaptureResult, *models.CaptureResult, *models.CaptureResult) {
	draft := models.NewAgreementDraft(7, models.AgreementRental, fixedNow)
	audio := &models.CaptureResult{Kind: models.CaptureKindAudio, Handle: "/tmp/cap_a.wav"}
	face1 := &models.CaptureResult{Kind: models.CaptureKindImage, Handle: "/tmp/cap_1.jpg"}
	face2 := &models.CaptureResult{Kind: models.CaptureKindImage, Handle: "/tmp/cap_2.jpg"}
	return &draft, audio, face1, face2
}

func newTestOrchestrator(backend *fakeBackend, feed *fakeFeed, metrics *fakeMetrics) *Orchestrator {
	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	if feed != nil {
		opts = append(opts, WithFeed(feed))
	}
	return NewOrchestrator(backend, backend, metrics, nil, opts...)
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSubmitRunsStepsInOrderAgainstCreatedID(t *testing.T) {
	backend := &fakeBackend{log: &callLog{}, createID: 42}
	feed := &fakeFeed{}
	metrics := newFakeMetrics()
	obs := &recordingObserver{}
	o := newTestOrchestrator(backend, feed, metrics)

	draft, audio, face1, face2 := validInputs()
	result, err := o.SubmitWithObserver(context.Background(), obs, draft, audio, face1, face2)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := backend.log.snapshot(); !equalCalls(got, []string{"create", "audio", "faces"}) {
		t.Fatalf("unexpected call order %v", got)
	}
	if backend.audioID != 42 || backend.facesID != 42 {
		t.Fatalf("attachments must target id 42, got audio=%d faces=%d", backend.audioID, backend.facesID)
	}
	sent := backend.drafts[0]
	if sent.OwnerID != 7 || sent.Type != models.AgreementRental || sent.Status != models.AgreementInProgress {
		t.Fatalf("unexpected draft sent %+v", sent)
	}
	if result.Record.ID != 42 || !result.Complete() {
		t.Fatalf("unexpected result %+v", result)
	}
	wantEvents := []string{"start:create", "done:create", "start:audio", "done:audio", "start:faces", "done:faces"}
	if !equalCalls(obs.events, wantEvents) {
		t.Fatalf("unexpected observer events %v", obs.events)
	}
	if len(feed.entries) != 1 || feed.entries[0].Record.ID != 42 || !feed.entries[0].SubmittedAt.Equal(fixedNow) {
		t.Fatalf("unexpected feed entries %+v", feed.entries)
	}
	if metrics.submissions[outcomeSuccess] != 1 || metrics.attachments["audio/success"] != 1 || metrics.attachments["faces/success"] != 1 {
		t.Fatalf("unexpected metrics %+v %+v", metrics.submissions, metrics.attachments)
	}
	if o.Busy() {
		t.Fatalf("busy must clear after submit")
	}
}

func TestSubmitRejectsIncompleteInputWithoutCalls(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(d **models.AgreementDraft, a, f1, f2 **models.CaptureResult)
	}{
		{"nil draft", func(d **models.AgreementDraft, _, _, _ **models.CaptureResult) { *d = nil }},
		{"no owner", func(d **models.AgreementDraft, _, _, _ **models.CaptureResult) { (*d).OwnerID = 0 }},
		{"empty type", func(d **models.AgreementDraft, _, _, _ **models.CaptureResult) { (*d).Type = "" }},
		{"unknown type", func(d **models.AgreementDraft, _, _, _ **models.CaptureResult) { (*d).Type = "lease" }},
		{"unknown status", func(d **models.AgreementDraft, _, _, _ **models.CaptureResult) { (*d).Status = "done" }},
		{"nil audio", func(_ **models.AgreementDraft, a, _, _ **models.CaptureResult) { *a = nil }},
		{"nil face1", func(_ **models.AgreementDraft, _, f1, _ **models.CaptureResult) { *f1 = nil }},
		{"nil face2", func(_ **models.AgreementDraft, _, _, f2 **models.CaptureResult) { *f2 = nil }},
		{"empty audio handle", func(_ **models.AgreementDraft, a, _, _ **models.CaptureResult) { (*a).Handle = " " }},
		{"audio is image", func(_ **models.AgreementDraft, a, _, _ **models.CaptureResult) { (*a).Kind = models.CaptureKindImage }},
		{"empty face1 handle", func(_ **models.AgreementDraft, _, f1, _ **models.CaptureResult) { (*f1).Handle = "" }},
		{"empty face2 handle", func(_ **models.AgreementDraft, _, _, f2 **models.CaptureResult) { (*f2).Handle = "" }},
		{"face1 is audio", func(_ **models.AgreementDraft, _, f1, _ **models.CaptureResult) { (*f1).Kind = models.CaptureKindAudio }},
		{"face2 is audio", func(_ **models.AgreementDraft, _, _, f2 **models.CaptureResult) { (*f2).Kind = models.CaptureKindAudio }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			backend := &fakeBackend{log: &callLog{}, createID: 42}
			feed := &fakeFeed{}
			o := newTestOrchestrator(backend, feed, newFakeMetrics())

			draft, audio, face1, face2 := validInputs()
			tc.mutate(&draft, &audio, &face1, &face2)
			_, err := o.Submit(context.Background(), draft, audio, face1, face2)
			if !errors.Is(err, contracts.ErrIncompleteSubmission) {
				t.Fatalf("expected incomplete submission, got %v", err)
			}
			if calls := backend.log.snapshot(); len(calls) != 0 {
				t.Fatalf("expected no backend calls, got %v", calls)
			}
			if len(feed.entries) != 0 {
				t.Fatalf("rejected submission must not reach the feed")
			}
			if o.Busy() {
				t.Fatalf("busy must clear after rejection")
			}
		})
	}
}

func TestSubmitStopsWhenCreateFails(t *testing.T) {
	backend := &fakeBackend{log: &callLog{}, createErr: errors.New("http 500")}
	feed := &fakeFeed{}
	metrics := newFakeMetrics()
	obs := &recordingObserver{}
	o := newTestOrchestrator(backend, feed, metrics)

	draft, audio, face1, face2 := validInputs()
	_, err := o.SubmitWithObserver(context.Background(), obs, draft, audio, face1, face2)
	if !errors.Is(err, contracts.ErrMetadataCreateFailed) {
		t.Fatalf("expected metadata create failure, got %v", err)
	}
	if got := backend.log.snapshot(); !equalCalls(got, []string{"create"}) {
		t.Fatalf("no uploads may follow a failed create, got %v", got)
	}
	if !equalCalls(obs.events, []string{"start:create", "fail:create"}) {
		t.Fatalf("unexpected observer events %v", obs.events)
	}
	if len(feed.entries) != 0 || metrics.submissions[outcomeFailure] != 1 {
		t.Fatalf("unexpected side effects feed=%d metrics=%v", len(feed.entries), metrics.submissions)
	}
	if o.Busy() {
		t.Fatalf("busy must clear after failed create")
	}
	title, message := contracts.Advisory(err)
	if title != "Error" || message != "Failed to create agreement." {
		t.Fatalf("unexpected advisory %q %q", title, message)
	}
}

func TestSubmitTreatsMissingIDAsCreateFailure(t *testing.T) {
	backend := &fakeBackend{log: &callLog{}, createID: 0}
	o := newTestOrchestrator(backend, nil, nil)

	draft, audio, face1, face2 := validInputs()
	if _, err := o.Submit(context.Background(), draft, audio, face1, face2); !errors.Is(err, contracts.ErrMetadataCreateFailed) {
		t.Fatalf("expected metadata create failure, got %v", err)
	}
	if got := backend.log.snapshot(); !equalCalls(got, []string{"create"}) {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestSubmitContinuesPastAttachmentFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		audioErr   error
		facesErr   error
		audioOK    bool
		facesOK    bool
		wantEvents []string
	}{
		{
			name:       "audio fails",
			audioErr:   errors.New("audio 502"),
			facesOK:    true,
			wantEvents: []string{"start:create", "done:create", "start:audio", "fail:audio", "start:faces", "done:faces"},
		},
		{
			name:       "faces fail",
			facesErr:   errors.New("faces 413"),
			audioOK:    true,
			wantEvents: []string{"start:create", "done:create", "start:audio", "done:audio", "start:faces", "fail:faces"},
		},
		{
			name:       "both fail",
			audioErr:   errors.New("audio 502"),
			facesErr:   errors.New("faces 502"),
			wantEvents: []string{"start:create", "done:create", "start:audio", "fail:audio", "start:faces", "fail:faces"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			backend := &fakeBackend{log: &callLog{}, createID: 42, audioErr: tc.audioErr, facesErr: tc.facesErr}
			feed := &fakeFeed{}
			obs := &recordingObserver{}
			o := newTestOrchestrator(backend, feed, newFakeMetrics())

			draft, audio, face1, face2 := validInputs()
			result, err := o.SubmitWithObserver(context.Background(), obs, draft, audio, face1, face2)
			if err != nil {
				t.Fatalf("attachment failures must not fail the submission: %v", err)
			}
			if got := backend.log.snapshot(); !equalCalls(got, []string{"create", "audio", "faces"}) {
				t.Fatalf("unexpected call order %v", got)
			}
			if result.Complete() {
				t.Fatalf("result must report the missing attachment")
			}
			if len(feed.entries) != 1 {
				t.Fatalf("expected feed entry, got %d", len(feed.entries))
			}
			entry := feed.entries[0]
			if !entry.Incomplete() {
				t.Fatalf("feed entry must be flagged incomplete")
			}
			if got := entry.Outcome(models.AttachmentGroupAudio); got.Uploaded != tc.audioOK || (tc.audioErr != nil && got.Error == "") {
				t.Fatalf("unexpected audio outcome %+v", got)
			}
			if got := entry.Outcome(models.AttachmentGroupFaces); got.Uploaded != tc.facesOK || (tc.facesErr != nil && got.Error == "") {
				t.Fatalf("unexpected faces outcome %+v", got)
			}
			if !equalCalls(obs.events, tc.wantEvents) {
				t.Fatalf("unexpected observer events %v", obs.events)
			}
		})
	}
}

func TestSubmitFeedFailureDoesNotFailSubmission(t *testing.T) {
	backend := &fakeBackend{log: &callLog{}, createID: 42}
	o := newTestOrchestrator(backend, &fakeFeed{err: errors.New("disk full")}, nil)

	draft, audio, face1, face2 := validInputs()
	result, err := o.Submit(context.Background(), draft, audio, face1, face2)
	if err != nil || result.Record.ID != 42 {
		t.Fatalf("unexpected result %+v err=%v", result, err)
	}
}

func TestSubmitIsExclusiveWhileBusy(t *testing.T) {
	backend := &fakeBackend{log: &callLog{}, createID: 42, block: make(chan struct{}), entered: make(chan struct{})}
	o := newTestOrchestrator(backend, nil, nil)

	draft, audio, face1, face2 := validInputs()
	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), draft, audio, face1, face2)
		done <- err
	}()

	<-backend.entered
	if !o.Busy() {
		t.Fatalf("busy must be set while create is in flight")
	}
	d2, a2, f12, f22 := validInputs()
	if _, err := o.Submit(context.Background(), d2, a2, f12, f22); !errors.Is(err, contracts.ErrSubmissionInProgress) {
		t.Fatalf("expected submission in progress, got %v", err)
	}
	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if o.Busy() {
		t.Fatalf("busy must clear after completion")
	}
	if got := backend.log.snapshot(); !equalCalls(got, []string{"create", "audio", "faces"}) {
		t.Fatalf("second submit must not reach the backend, got %v", got)
	}
}

type fakeDocuments struct {
	docs map[string]models.UserDocument
	err  error
}

func (f *fakeDocuments) GetUserDocument(_ context.Context, uid string) (models.UserDocument, bool, error) {
	if f.err != nil {
		return models.UserDocument{}, false, f.err
	}
	doc, ok := f.docs[uid]
	return doc, ok, nil
}

func (f *fakeDocuments) SetUserDocument(_ context.Context, uid string, doc models.UserDocument) error {
	f.docs[uid] = doc
	return nil
}

func (f *fakeDocuments) UpdateUserProfile(_ context.Context, uid, username, photoURL string) error {
	doc := f.docs[uid]
	doc.Username, doc.PhotoURL = username, photoURL
	f.docs[uid] = doc
	return nil
}

func TestHomeGreetsByUsernameAndListsOwnEntries(t *testing.T) {
	feed := &fakeFeed{entries: []models.FeedEntry{
		{Record: models.AgreementRecord{ID: 42, OwnerID: 7}},
		{Record: models.AgreementRecord{ID: 43, OwnerID: 8}},
	}}
	docs := &fakeDocuments{docs: map[string]models.UserDocument{"uid-7": {Username: "alice", Email: "alice@example.test"}}}
	svc := NewFeedService(docs, feed, nil)

	view, err := svc.Home(context.Background(), models.Session{UserID: 7, AuthUID: "uid-7", Email: "session@example.test"})
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if view.Greeting != "alice" || view.Email != "alice@example.test" {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Entries) != 1 || view.Entries[0].Record.ID != 42 {
		t.Fatalf("unexpected entries %+v", view.Entries)
	}
}

func TestHomeFallsBackToGuest(t *testing.T) {
	t.Parallel()

	for _, docs := range []*fakeDocuments{
		{docs: map[string]models.UserDocument{}},
		{docs: map[string]models.UserDocument{"uid-7": {Username: "  "}}},
		{err: errors.New("unavailable")},
	} {
		svc := NewFeedService(docs, &fakeFeed{}, nil)
		view, err := svc.Home(context.Background(), models.Session{UserID: 7, AuthUID: "uid-7", Email: "s@example.test"})
		if err != nil {
			t.Fatalf("home: %v", err)
		}
		if view.Greeting != guestName || view.Email != "s@example.test" {
			t.Fatalf("unexpected view %+v", view)
		}
	}
}
