package models

import (
	"net/url"
	"strings"
	"time"
)

type CaptureKind string

const (
	CaptureKindAudio CaptureKind = "audio"
	CaptureKindImage CaptureKind = "image"
)

type CameraFacing string

const (
	CameraFront CameraFacing = "front"
	CameraRear  CameraFacing = "rear"
)

type AudioPreset string

const (
	AudioPresetHigh AudioPreset = "high"
	AudioPresetLow  AudioPreset = "low"
)

// CaptureResult is a local media resource produced by a capture adapter.
type CaptureResult struct {
	Kind       CaptureKind `json:"kind"`
	Handle     string      `json:"handle"`
	CapturedAt time.Time   `json:"captured_at"`
}

type CaptureOptions struct {
	Camera      CameraFacing  `json:"camera,omitempty"`
	Quality     float64       `json:"quality,omitempty"`
	AudioPreset AudioPreset   `json:"audio_preset,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Source      string        `json:"source,omitempty"`
}

type AgreementType string

const (
	AgreementRental   AgreementType = "rental"
	AgreementLoan     AgreementType = "loan"
	AgreementExchange AgreementType = "exchange"
	AgreementBusiness AgreementType = "business"
	AgreementCustom   AgreementType = "custom"
)

var agreementTypes = []AgreementType{
	AgreementRental,
	AgreementLoan,
	AgreementExchange,
	AgreementBusiness,
	AgreementCustom,
}

func AgreementTypes() []AgreementType {
	return append([]AgreementType(nil), agreementTypes...)
}

func (t AgreementType) Valid() bool {
	for _, known := range agreementTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t AgreementType) Label() string {
	switch t {
	case AgreementRental:
		return "Rental Agreement"
	case AgreementLoan:
		return "Loan Agreement"
	case AgreementExchange:
		return "Exchange of Goods"
	case AgreementBusiness:
		return "Business Agreement"
	case AgreementCustom:
		return "Custom Agreement"
	default:
		return string(t)
	}
}

type AgreementStatus string

const (
	AgreementInProgress AgreementStatus = "in_progress"
	AgreementActive     AgreementStatus = "active"
	AgreementPending    AgreementStatus = "pending"
)

func (s AgreementStatus) Valid() bool {
	switch s {
	case AgreementInProgress, AgreementActive, AgreementPending:
		return true
	default:
		return false
	}
}

type AgreementDraft struct {
	OwnerID   int64           `json:"owner_id"`
	Type      AgreementType   `json:"type"`
	Status    AgreementStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewAgreementDraft starts a draft in the in_progress state.
func NewAgreementDraft(ownerID int64, agreementType AgreementType, now time.Time) AgreementDraft {
	return AgreementDraft{
		OwnerID:   ownerID,
		Type:      agreementType,
		Status:    AgreementInProgress,
		CreatedAt: now.UTC(),
	}
}

type AgreementRecord struct {
	ID        int64           `json:"id"`
	OwnerID   int64           `json:"owner_id"`
	Type      AgreementType   `json:"type"`
	Status    AgreementStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type AttachmentGroup string

const (
	AttachmentGroupAudio AttachmentGroup = "audio"
	AttachmentGroupFaces AttachmentGroup = "faces"
)

type AttachmentOutcome struct {
	Group    AttachmentGroup `json:"group"`
	Uploaded bool            `json:"uploaded"`
	Error    string          `json:"error,omitempty"`
}

// FeedEntry is the local copy of an agreement this client created.
type FeedEntry struct {
	Record      AgreementRecord     `json:"record"`
	Attachments []AttachmentOutcome `json:"attachments"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

func (e FeedEntry) Incomplete() bool {
	for _, outcome := range e.Attachments {
		if !outcome.Uploaded {
			return true
		}
	}
	return false
}

// Outcome returns the recorded outcome for group, or a not-uploaded outcome when none exists.
func (e FeedEntry) Outcome(group AttachmentGroup) AttachmentOutcome {
	for _, outcome := range e.Attachments {
		if outcome.Group == group {
			return outcome
		}
	}
	return AttachmentOutcome{Group: group}
}

type UserProfile struct {
	UserID       int64  `json:"user_id"`
	AuthUID      string `json:"auth_uid"`
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
	AvatarHandle string `json:"avatar_handle,omitempty"`
}

// UserDocument mirrors users/{uid} in the document store.
type UserDocument struct {
	Username  string    `json:"username" firestore:"username,omitempty"`
	Email     string    `json:"email" firestore:"email,omitempty"`
	PhotoURL  string    `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,omitempty"`
}

type Session struct {
	UserID       int64     `json:"user_id"`
	AuthUID      string    `json:"auth_uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s Session) Live(now time.Time) bool {
	if strings.TrimSpace(s.AuthUID) == "" || s.UserID == 0 {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt)
}

type AuthAccount struct {
	UID          string        `json:"uid"`
	Email        string        `json:"email"`
	DisplayName  string        `json:"display_name,omitempty"`
	PhotoURL     string        `json:"photo_url,omitempty"`
	IDToken      string        `json:"id_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresIn    time.Duration `json:"expires_in,omitempty"`
}

type AuthProfileUpdate struct {
	DisplayName string
	PhotoURL    string
}

type BackendUser struct {
	ID          int64  `json:"id"`
	FirebaseUID string `json:"firebaseUid"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
}

// IsDurableHandle reports whether handle already points at blob storage rather than a local file.
func IsDurableHandle(handle string) bool {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return false
	}
	u, err := url.Parse(handle)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "gs", "blob":
		return true
	default:
		return false
	}
}

// LocalPath returns the filesystem path behind a local handle.
func LocalPath(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "file://") {
		if u, err := url.Parse(handle); err == nil {
			return u.Path
		}
	}
	return handle
}
