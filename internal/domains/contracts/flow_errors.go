package contracts

import (
	"errors"
	"strings"
)

type FlowErrorKind string

const (
	KindPermissionDenied       FlowErrorKind = "permission_denied"
	KindCaptureCancelled       FlowErrorKind = "capture_cancelled"
	KindIncompleteSubmission   FlowErrorKind = "incomplete_submission"
	KindSubmissionInProgress   FlowErrorKind = "submission_in_progress"
	KindMetadataCreateFailed   FlowErrorKind = "metadata_create_failed"
	KindAttachmentUploadFailed FlowErrorKind = "attachment_upload_failed"
	KindProfileSaveFailed      FlowErrorKind = "profile_save_failed"
	KindSessionRequired        FlowErrorKind = "session_required"
	KindSignupFailed           FlowErrorKind = "signup_failed"
	KindLoginFailed            FlowErrorKind = "login_failed"
	KindGeneric                FlowErrorKind = "generic"
)

// FlowError is the user-facing failure of a client flow.
type FlowError struct {
	Kind FlowErrorKind
	Op   string
	Err  error
}

var (
	ErrPermissionDenied       = &FlowError{Kind: KindPermissionDenied}
	ErrCaptureCancelled       = &FlowError{Kind: KindCaptureCancelled}
	ErrIncompleteSubmission   = &FlowError{Kind: KindIncompleteSubmission}
	ErrSubmissionInProgress   = &FlowError{Kind: KindSubmissionInProgress}
	ErrMetadataCreateFailed   = &FlowError{Kind: KindMetadataCreateFailed}
	ErrAttachmentUploadFailed = &FlowError{Kind: KindAttachmentUploadFailed}
	ErrProfileSaveFailed      = &FlowError{Kind: KindProfileSaveFailed}
	ErrSessionRequired        = &FlowError{Kind: KindSessionRequired}
	ErrSignupFailed           = &FlowError{Kind: KindSignupFailed}
	ErrLoginFailed            = &FlowError{Kind: KindLoginFailed}
)

func NewFlowError(kind FlowErrorKind, op string, err error) error {
	return &FlowError{Kind: kind, Op: strings.TrimSpace(op), Err: err}
}

func (e *FlowError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches bare kind sentinels such as ErrIncompleteSubmission.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func FlowErrorKindOf(err error) FlowErrorKind {
	if err == nil {
		return ""
	}
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Kind
	}
	return KindGeneric
}

type advisory struct {
	title   string
	message string
}

var advisories = map[FlowErrorKind]advisory{
	KindPermissionDenied:       {"Permission required", "Camera or microphone access is needed."},
	KindCaptureCancelled:       {"Capture cancelled", "Nothing was captured."},
	KindIncompleteSubmission:   {"Missing Info", "Please complete all steps before submitting."},
	KindSubmissionInProgress:   {"Please wait", "A submission is already in progress."},
	KindMetadataCreateFailed:   {"Error", "Failed to create agreement."},
	KindAttachmentUploadFailed: {"Upload incomplete", "Some attachments could not be uploaded."},
	KindProfileSaveFailed:      {"Error", "Could not update profile."},
	KindSessionRequired:        {"Signed out", "Please log in to continue."},
	KindSignupFailed:           {"Signup failed", "Could not create your account."},
	KindLoginFailed:            {"Login failed", "Could not sign you in."},
	KindGeneric:                {"Upload Failed", "Something went wrong."},
}

// Advisory returns the static title and message shown for err.
func Advisory(err error) (string, string) {
	a, ok := advisories[FlowErrorKindOf(err)]
	if !ok {
		a = advisories[KindGeneric]
	}
	return a.title, a.message
}

func (k FlowErrorKind) String() string {
	return string(k)
}

