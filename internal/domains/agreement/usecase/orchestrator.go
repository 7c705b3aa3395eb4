package usecase

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/pkg/models"
)

const componentName = "agreement"

const (
	StepCreate = "create"
	StepAudio  = "audio"
	StepFaces  = "faces"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics is the subset of the metrics client the upload pipeline reports to.
type Metrics interface {
	RecordSubmission(outcome string)
	RecordAttachment(group, outcome string)
	ObserveStep(step string, started time.Time)
}

// SubmitResult is a created agreement plus what happened to each attachment group.
type SubmitResult struct {
	Record      models.AgreementRecord     `json:"record"`
	Attachments []models.AttachmentOutcome `json:"attachments"`
}

// Complete reports whether every attachment group was uploaded.
func (r SubmitResult) Complete() bool {
	for _, a := range r.Attachments {
		if !a.Uploaded {
			return false
		}
	}
	return true
}

// Orchestrator runs create -> audio -> faces strictly in sequence. Only the create step is
// fatal; attachment failures are reported in the result and never roll anything back.
type Orchestrator struct {
	metadata contracts.AgreementMetadataService
	uploads  contracts.ResourceUploadService
	feed     contracts.FeedRepository
	metrics  Metrics
	log      *logschema.Logger
	now      func() time.Time
	busy     atomic.Bool
}

type Option func(*Orchestrator)

// WithFeed records every created agreement in the local feed.
func WithFeed(feed contracts.FeedRepository) Option {
	return func(o *Orchestrator) { o.feed = feed }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(metadata contracts.AgreementMetadataService, uploads contracts.ResourceUploadService, metrics Metrics, log *logschema.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		metadata: metadata,
		uploads:  uploads,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logschema.New(componentName, nil, nil)
	}
	return o
}

// Busy is true while a submission is running.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

func (o *Orchestrator) Submit(ctx context.Context, draft *models.AgreementDraft, audio, face1, face2 *models.CaptureResult) (SubmitResult, error) {
	return o.SubmitWithObserver(ctx, nil, draft, audio, face1, face2)
}

// SubmitWithObserver is Submit with step progress reported to observer.
func (o *Orchestrator) SubmitWithObserver(ctx context.Context, observer contracts.SubmitObserver, draft *models.AgreementDraft, audio, face1, face2 *models.CaptureResult) (SubmitResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return SubmitResult{}, contracts.NewFlowError(contracts.KindSubmissionInProgress, "submit", nil)
	}
	defer o.busy.Store(false)

	if err := validateSubmission(draft, audio, face1, face2); err != nil {
		o.log.Warn("submit", "", "submission rejected", "reason", err.Error())
		return SubmitResult{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "submit", err)
	}
	obs := safeObserver{observer}

	obs.StepStarted(StepCreate)
	started := o.now()
	record, err := o.metadata.CreateAgreement(ctx, *draft)
	o.observeStep(StepCreate, started)
	if err == nil && record.ID == 0 {
		err = errMissingAgreementID
	}
	if err != nil {
		obs.StepFinished(StepCreate, err)
		o.recordSubmission(outcomeFailure)
		o.log.Error(contracts.ErrorCategory(err), err, "submit.create", logschema.AgreementCorrelationID(draft.OwnerID, 0), "owner_id", draft.OwnerID)
		return SubmitResult{}, contracts.NewFlowError(contracts.KindMetadataCreateFailed, "submit.create", err)
	}
	obs.StepFinished(StepCreate, nil)
	correlationID := logschema.AgreementCorrelationID(record.OwnerID, record.ID)
	o.log.Info("submit.create", correlationID, "agreement created", "agreement_id", record.ID, "agreement_type", string(record.Type))

	audioOutcome := o.runAttachmentStep(obs, StepAudio, models.AttachmentGroupAudio, correlationID, func() error {
		return o.uploads.UploadAudio(ctx, record.ID, *audio)
	})
	facesOutcome := o.runAttachmentStep(obs, StepFaces, models.AttachmentGroupFaces, correlationID, func() error {
		return o.uploads.UploadFaces(ctx, record.ID, *face1, *face2)
	})

	result := SubmitResult{
		Record:      record,
		Attachments: []models.AttachmentOutcome{audioOutcome, facesOutcome},
	}
	o.recordSubmission(outcomeSuccess)
	o.saveFeedEntry(ctx, result, correlationID)
	return result, nil
}

func (o *Orchestrator) runAttachmentStep(obs safeObserver, step string, group models.AttachmentGroup, correlationID string, upload func() error) models.AttachmentOutcome {
	obs.StepStarted(step)
	started := o.now()
	err := upload()
	o.observeStep(step, started)
	if err != nil {
		wrapped := contracts.NewFlowError(contracts.KindAttachmentUploadFailed, "submit."+step, err)
		obs.StepFinished(step, wrapped)
		o.recordAttachment(group, outcomeFailure)
		o.log.Error(contracts.ErrorCategory(err), wrapped, "submit."+step, correlationID)
		return models.AttachmentOutcome{Group: group, Error: err.Error()}
	}
	obs.StepFinished(step, nil)
	o.recordAttachment(group, outcomeSuccess)
	return models.AttachmentOutcome{Group: group, Uploaded: true}
}

// saveFeedEntry failures are logged only; the remote agreement already exists.
func (o *Orchestrator) saveFeedEntry(ctx context.Context, result SubmitResult, correlationID string) {
	if o.feed == nil {
		return
	}
	entry := models.FeedEntry{
		Record:      result.Record,
		Attachments: result.Attachments,
		SubmittedAt: o.now().UTC(),
	}
	if err := o.feed.SaveFeedEntry(context.WithoutCancel(ctx), entry); err != nil {
		o.log.Error(contracts.ErrorCategoryStorage, err, "submit.feed", correlationID)
		return
	}
	if entry.Incomplete() {
		o.log.Warn("submit.feed", correlationID, "agreement stored with missing attachments")
	}
}

func (o *Orchestrator) observeStep(step string, started time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveStep(step, started)
	}
}

func (o *Orchestrator) recordSubmission(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordSubmission(outcome)
	}
}

func (o *Orchestrator) recordAttachment(group models.AttachmentGroup, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordAttachment(string(group), outcome)
	}
}

type safeObserver struct {
	next contracts.SubmitObserver
}

func (s safeObserver) StepStarted(step string) {
	if s.next != nil {
		s.next.StepStarted(step)
	}
}

func (s safeObserver) StepFinished(step string, err error) {
	if s.next != nil {
		s.next.StepFinished(step, err)
	}
}

func trimmedEmpty(v string) bool {
	return strings.TrimSpace(v) == ""
}
