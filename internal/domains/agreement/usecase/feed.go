package usecase

import (
	"context"
	"strings"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/pkg/models"
)

const guestName = "Guest"

// HomeView is what the home screen shows for a signed-in user.
type HomeView struct {
	Greeting string             `json:"greeting"`
	Email    string             `json:"email,omitempty"`
	PhotoURL string             `json:"photo_url,omitempty"`
	Entries  []models.FeedEntry `json:"entries"`
}

type FeedService struct {
	documents contracts.DocumentStore
	feed      contracts.FeedRepository
	log       *logschema.Logger
}

func NewFeedService(documents contracts.DocumentStore, feed contracts.FeedRepository, log *logschema.Logger) *FeedService {
	if log == nil {
		log = logschema.New(componentName, nil, nil)
	}
	return &FeedService{documents: documents, feed: feed, log: log}
}

// Home greets by the stored username and lists this user's agreements newest first.
// A missing or unreadable user document degrades to the guest greeting.
func (s *FeedService) Home(ctx context.Context, session models.Session) (HomeView, error) {
	view := HomeView{Greeting: guestName, Email: session.Email}
	correlationID := logschema.AgreementCorrelationID(session.UserID, 0)

	if s.documents != nil {
		doc, ok, err := s.documents.GetUserDocument(ctx, session.AuthUID)
		switch {
		case err != nil:
			s.log.Error(contracts.ErrorCategory(err), err, "home.document", correlationID)
		case ok:
			if name := strings.TrimSpace(doc.Username); name != "" {
				view.Greeting = name
			}
			if email := strings.TrimSpace(doc.Email); email != "" {
				view.Email = email
			}
			view.PhotoURL = doc.PhotoURL
		}
	}

	if s.feed == nil {
		return view, nil
	}
	entries, err := s.feed.ListFeedEntries(ctx, session.UserID)
	if err != nil {
		s.log.Error(contracts.ErrorCategoryStorage, err, "home.feed", correlationID)
		return view, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	view.Entries = entries
	return view, nil
}
