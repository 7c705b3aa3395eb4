package storage

import (
	"context"
	"database/sql"
	"fmt"

	"verisay/go-client/pkg/models"
)

// FeedStore records the agreements submitted from this client, with their attachment outcomes.
type FeedStore struct {
	db *sql.DB
}

func NewFeedStore(db *sql.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) SaveFeedEntry(ctx context.Context, entry models.FeedEntry) error {
	audio := entry.Outcome(models.AttachmentGroupAudio)
	faces := entry.Outcome(models.AttachmentGroupFaces)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agreement_feed (
			id, owner_id, agreement_type, status, created_at, submitted_at,
			audio_uploaded, audio_error, faces_uploaded, faces_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, id) DO UPDATE SET
			agreement_type = excluded.agreement_type,
			status = excluded.status,
			created_at = excluded.created_at,
			submitted_at = excluded.submitted_at,
			audio_uploaded = excluded.audio_uploaded,
			audio_error = excluded.audio_error,
			faces_uploaded = excluded.faces_uploaded,
			faces_error = excluded.faces_error`,
		entry.Record.ID,
		entry.Record.OwnerID,
		string(entry.Record.Type),
		string(entry.Record.Status),
		formatTime(entry.Record.CreatedAt),
		formatTime(entry.SubmittedAt),
		boolToInt(audio.Uploaded), audio.Error,
		boolToInt(faces.Uploaded), faces.Error,
	)
	if err != nil {
		return fmt.Errorf("save feed entry: %w", err)
	}
	return nil
}

// ListFeedEntries returns the owner's entries, newest submission first.
func (s *FeedStore) ListFeedEntries(ctx context.Context, ownerID int64) ([]models.FeedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, agreement_type, status, created_at, submitted_at,
			audio_uploaded, audio_error, faces_uploaded, faces_error
		FROM agreement_feed
		WHERE owner_id = ?
		ORDER BY submitted_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list feed entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.FeedEntry, 0)
	for rows.Next() {
		var (
			rec                          models.AgreementRecord
			agreementType, status        string
			createdAt, submittedAt       string
			audioUploaded, facesUploaded int
			audioErr, facesErr           string
		)
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &agreementType, &status, &createdAt, &submittedAt,
			&audioUploaded, &audioErr, &facesUploaded, &facesErr,
		); err != nil {
			return nil, fmt.Errorf("scan feed entry: %w", err)
		}
		rec.Type = models.AgreementType(agreementType)
		rec.Status = models.AgreementStatus(status)
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, models.FeedEntry{
			Record: rec,
			Attachments: []models.AttachmentOutcome{
				{Group: models.AttachmentGroupAudio, Uploaded: audioUploaded == 1, Error: audioErr},
				{Group: models.AttachmentGroupFaces, Uploaded: facesUploaded == 1, Error: facesErr},
			},
			SubmittedAt: parseTime(submittedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed entries: %w", err)
	}
	return out, nil
}
