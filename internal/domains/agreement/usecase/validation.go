package usecase

import (
	"errors"
	"fmt"

	"verisay/go-client/pkg/models"
)

var (
	errMissingDraft       = errors.New("agreement draft is missing")
	errMissingOwner       = errors.New("agreement owner is missing")
	errMissingType        = errors.New("agreement type is missing")
	errMissingAudio       = errors.New("voice recording is missing")
	errMissingFace        = errors.New("face photo is missing")
	errMissingAgreementID = errors.New("agreement created without an id")
)

func validateSubmission(draft *models.AgreementDraft, audio, face1, face2 *models.CaptureResult) error {
	if draft == nil {
		return errMissingDraft
	}
	if draft.OwnerID <= 0 {
		return errMissingOwner
	}
	if trimmedEmpty(string(draft.Type)) {
		return errMissingType
	}
	if !draft.Type.Valid() {
		return fmt.Errorf("unknown agreement type %q", draft.Type)
	}
	if !draft.Status.Valid() {
		return fmt.Errorf("unknown agreement status %q", draft.Status)
	}
	if err := validateCapture(audio, models.CaptureKindAudio, errMissingAudio); err != nil {
		return err
	}
	if err := validateCapture(face1, models.CaptureKindImage, errMissingFace); err != nil {
		return err
	}
	return validateCapture(face2, models.CaptureKindImage, errMissingFace)
}

func validateCapture(c *models.CaptureResult, kind models.CaptureKind, missing error) error {
	if c == nil || trimmedEmpty(c.Handle) {
		return missing
	}
	if c.Kind != kind {
		return fmt.Errorf("capture %s has kind %q, want %q", c.Handle, c.Kind, kind)
	}
	return nil
}
