package usecase

import (
	"context"
	"errors"
	"strings"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/pkg/models"
)

const (
	componentName = "profile"
	avatarQuality = 0.7
	avatarType    = "image/jpeg"
)

// Outcome is where the caller goes after a save. Save always returns NavigateBack.
type Outcome string

const NavigateBack Outcome = "navigate_back"

var errNoSession = errors.New("profile requires a signed-in user")

// ImageNormalizer re-encodes a local image file as JPEG.
type ImageNormalizer interface {
	NormalizeImageFile(path string, quality float64) ([]byte, error)
}

type Service struct {
	documents contracts.DocumentStore
	identity  contracts.IdentityProvider
	blobs     contracts.BlobStore
	images    ImageNormalizer
	log       *logschema.Logger
}

func NewService(documents contracts.DocumentStore, identity contracts.IdentityProvider, blobs contracts.BlobStore, images ImageNormalizer, log *logschema.Logger) *Service {
	if log == nil {
		log = logschema.New(componentName, nil, nil)
	}
	return &Service{documents: documents, identity: identity, blobs: blobs, images: images, log: log}
}

// AvatarObjectPath is where a user's avatar lives in blob storage.
func AvatarObjectPath(authUID string) string {
	return "profilePictures/" + strings.TrimSpace(authUID) + ".jpg"
}

// Load reads users/{uid}; the identity provider's photo is the avatar fallback.
// Read failures are logged and leave the affected fields empty.
func (s *Service) Load(ctx context.Context, session models.Session) (models.UserProfile, error) {
	if strings.TrimSpace(session.AuthUID) == "" {
		return models.UserProfile{}, contracts.NewFlowError(contracts.KindSessionRequired, "profile.load", errNoSession)
	}
	profile := models.UserProfile{
		UserID:      session.UserID,
		AuthUID:     session.AuthUID,
		DisplayName: session.DisplayName,
		Email:       session.Email,
	}
	correlationID := logschema.AgreementCorrelationID(session.UserID, 0)

	doc, ok, err := s.documents.GetUserDocument(ctx, session.AuthUID)
	if err != nil {
		s.log.Error(contracts.ErrorCategory(err), err, "profile.load", correlationID)
	}
	if ok {
		profile.DisplayName = doc.Username
		profile.AvatarHandle = doc.PhotoURL
		if strings.TrimSpace(doc.Email) != "" {
			profile.Email = doc.Email
		}
	}
	if profile.AvatarHandle == "" && s.identity != nil && session.IDToken != "" {
		account, err := s.identity.Lookup(ctx, session.IDToken)
		if err != nil {
			s.log.Warn("profile.load", correlationID, "identity lookup failed", "category", contracts.ErrorCategory(err))
		} else {
			profile.AvatarHandle = account.PhotoURL
		}
	}
	return profile, nil
}

// Save uploads a local avatar, then writes the durable handle and display name to the
// identity provider and users/{uid}. The outcome is NavigateBack even when err is set.
func (s *Service) Save(ctx context.Context, session models.Session, edit models.UserProfile) (Outcome, models.UserProfile, error) {
	if strings.TrimSpace(session.AuthUID) == "" {
		return NavigateBack, edit, contracts.NewFlowError(contracts.KindProfileSaveFailed, "profile.save", errNoSession)
	}
	correlationID := logschema.AgreementCorrelationID(session.UserID, 0)
	saved := edit
	saved.UserID = session.UserID
	saved.AuthUID = session.AuthUID
	saved.DisplayName = strings.TrimSpace(edit.DisplayName)
	saved.AvatarHandle = strings.TrimSpace(edit.AvatarHandle)

	if saved.AvatarHandle != "" && !models.IsDurableHandle(saved.AvatarHandle) {
		handle, err := s.uploadAvatar(ctx, session.AuthUID, saved.AvatarHandle)
		if err != nil {
			return NavigateBack, edit, s.fail("profile.upload", correlationID, err)
		}
		saved.AvatarHandle = handle
		s.log.Info("profile.upload", correlationID, "avatar uploaded")
	}

	update := models.AuthProfileUpdate{DisplayName: saved.DisplayName, PhotoURL: saved.AvatarHandle}
	if err := s.identity.UpdateProfile(ctx, session.IDToken, update); err != nil {
		return NavigateBack, edit, s.fail("profile.identity", correlationID, err)
	}
	if err := s.documents.UpdateUserProfile(ctx, session.AuthUID, saved.DisplayName, saved.AvatarHandle); err != nil {
		return NavigateBack, edit, s.fail("profile.document", correlationID, err)
	}
	s.log.Info("profile.save", correlationID, "profile updated")
	return NavigateBack, saved, nil
}

func (s *Service) uploadAvatar(ctx context.Context, authUID, handle string) (string, error) {
	data, err := s.images.NormalizeImageFile(models.LocalPath(handle), avatarQuality)
	if err != nil {
		return "", err
	}
	return s.blobs.PutObject(ctx, AvatarObjectPath(authUID), avatarType, data)
}

func (s *Service) fail(op, correlationID string, err error) error {
	s.log.Error(contracts.ErrorCategory(err), err, op, correlationID)
	return contracts.NewFlowError(contracts.KindProfileSaveFailed, op, err)
}
