package ports

import (
	"context"

	"verisay/go-client/pkg/models"
)

// AgreementMetadataService persists agreement drafts on the backend.
type AgreementMetadataService interface {
	CreateAgreement(ctx context.Context, draft models.AgreementDraft) (models.AgreementRecord, error)
}

// ResourceUploadService accepts binary attachments for an existing agreement.
type ResourceUploadService interface {
	UploadAudio(ctx context.Context, agreementID int64, audio models.CaptureResult) error
	UploadFaces(ctx context.Context, agreementID int64, face1, face2 models.CaptureResult) error
}

// UserDirectory maps auth identities to backend user ids.
type UserDirectory interface {
	LookupByAuthUID(ctx context.Context, authUID string) (models.BackendUser, error)
	SaveUser(ctx context.Context, user models.BackendUser) error
}

// IdentityProvider is the external account service.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (models.AuthAccount, error)
	SignIn(ctx context.Context, email, password string) (models.AuthAccount, error)
	UpdateProfile(ctx context.Context, idToken string, update models.AuthProfileUpdate) error
	Lookup(ctx context.Context, idToken string) (models.AuthAccount, error)
}

// DocumentStore holds users/{uid} documents.
type DocumentStore interface {
	GetUserDocument(ctx context.Context, authUID string) (models.UserDocument, bool, error)
	SetUserDocument(ctx context.Context, authUID string, doc models.UserDocument) error
	UpdateUserProfile(ctx context.Context, authUID, username, photoURL string) error
}

// BlobStore stores durable binary objects and returns their durable handle.
type BlobStore interface {
	PutObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

type FeedRepository interface {
	SaveFeedEntry(ctx context.Context, entry models.FeedEntry) error
	ListFeedEntries(ctx context.Context, ownerID int64) ([]models.FeedEntry, error)
}

type SessionStore interface {
	Load() (models.Session, bool, error)
	Save(session models.Session) error
	Delete() error
}

// PermissionGate decides whether a device capability may be used.
type PermissionGate interface {
	RequestPermission(ctx context.Context, kind models.CaptureKind) (bool, error)
}

// CaptureDevice produces a raw capture file at outputPath.
type CaptureDevice interface {
	Capture(ctx context.Context, kind models.CaptureKind, opts models.CaptureOptions, outputPath string) error
}

// SubmitObserver receives upload pipeline progress.
type SubmitObserver interface {
	StepStarted(step string)
	StepFinished(step string, err error)
}

type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}
