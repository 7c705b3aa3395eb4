package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/pkg/models"
)

const componentName = "account"

var (
	errMissingUsername = errors.New("username is required")
	errMissingEmail    = errors.New("email is required")
	errMissingPassword = errors.New("password is required")
	errMissingUserID   = errors.New("backend returned no user id")
	errNoUserDocument  = errors.New("no user document to register from")
)

// Service runs signup, login and logout, and guards the authenticated area.
type Service struct {
	identity  contracts.IdentityProvider
	documents contracts.DocumentStore
	users     contracts.UserDirectory
	sessions  contracts.SessionStore
	log       *logschema.Logger
	now       func() time.Time
	onSession func(models.Session)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionListener is told about every session change; logout reports the zero Session.
func WithSessionListener(fn func(models.Session)) Option {
	return func(s *Service) { s.onSession = fn }
}

func NewService(identity contracts.IdentityProvider, documents contracts.DocumentStore, users contracts.UserDirectory, sessions contracts.SessionStore, log *logschema.Logger, opts ...Option) *Service {
	s := &Service{
		identity:  identity,
		documents: documents,
		users:     users,
		sessions:  sessions,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logschema.New(componentName, nil, nil)
	}
	return s
}

// Signup creates the identity account, its user document and the backend user, then
// persists the resulting session.
func (s *Service) Signup(ctx context.Context, username, email, password string) (models.Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return models.Session{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "signup", errMissingUsername)
	case email == "":
		return models.Session{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "signup", errMissingEmail)
	case password == "":
		return models.Session{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "signup", errMissingPassword)
	}

	account, err := s.identity.SignUp(ctx, email, password)
	if err != nil {
		return models.Session{}, s.fail(contracts.KindSignupFailed, "signup.identity", "", err)
	}
	now := s.now().UTC()
	doc := models.UserDocument{Username: username, Email: email, CreatedAt: now}
	if err := s.documents.SetUserDocument(ctx, account.UID, doc); err != nil {
		return models.Session{}, s.fail(contracts.KindSignupFailed, "signup.document", account.UID, err)
	}
	// A failed backend save is repaired on the next login from the user document.
	if err := s.users.SaveUser(ctx, models.BackendUser{FirebaseUID: account.UID, Email: email, FullName: username}); err != nil {
		s.log.Warn("signup.backend", "", "backend user not saved", "auth_uid", account.UID, "error", err.Error())
	}
	user, err := s.resolveUser(ctx, account.UID)
	if err != nil {
		return models.Session{}, s.fail(contracts.KindSignupFailed, "signup.lookup", account.UID, err)
	}
	account.DisplayName = username
	session := newSession(user, account, now)
	if err := s.persist(session); err != nil {
		return models.Session{}, s.fail(contracts.KindSignupFailed, "signup.session", account.UID, err)
	}
	s.log.Info("signup", logschema.AgreementCorrelationID(user.ID, 0), "account created", "user_id", user.ID)
	return session, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Session{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "login", errMissingEmail)
	}
	if password == "" {
		return models.Session{}, contracts.NewFlowError(contracts.KindIncompleteSubmission, "login", errMissingPassword)
	}
	account, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return models.Session{}, s.fail(contracts.KindLoginFailed, "login.identity", "", err)
	}
	user, err := s.resolveUser(ctx, account.UID)
	if err != nil {
		repaired, repairErr := s.repairUser(ctx, account)
		if repairErr != nil {
			return models.Session{}, s.fail(contracts.KindLoginFailed, "login.lookup", account.UID, errors.Join(err, repairErr))
		}
		user = repaired
	}
	if strings.TrimSpace(account.DisplayName) == "" {
		account.DisplayName = user.FullName
	}
	session := newSession(user, account, s.now().UTC())
	if err := s.persist(session); err != nil {
		return models.Session{}, s.fail(contracts.KindLoginFailed, "login.session", account.UID, err)
	}
	s.log.Info("login", logschema.AgreementCorrelationID(user.ID, 0), "signed in", "user_id", user.ID)
	return session, nil
}

// Logout forgets the persisted session. Logging out while signed out is not an error.
func (s *Service) Logout() error {
	if err := s.sessions.Delete(); err != nil {
		s.log.Error(contracts.ErrorCategoryStorage, err, "logout", "")
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	s.notify(models.Session{})
	s.log.Info("logout", "", "session removed")
	return nil
}

// Require returns the live session or SessionRequired when it is missing or expired.
func (s *Service) Require() (models.Session, error) {
	session, ok, err := s.sessions.Load()
	if err != nil {
		s.log.Error(contracts.ErrorCategory(err), err, "session.load", "")
		return models.Session{}, contracts.NewFlowError(contracts.KindSessionRequired, "session", err)
	}
	if !ok || !session.Live(s.now()) {
		return models.Session{}, contracts.NewFlowError(contracts.KindSessionRequired, "session", nil)
	}
	return session, nil
}

// repairUser registers the backend user from the user document written at signup.
func (s *Service) repairUser(ctx context.Context, account models.AuthAccount) (models.BackendUser, error) {
	doc, ok, err := s.documents.GetUserDocument(ctx, account.UID)
	if err != nil {
		return models.BackendUser{}, err
	}
	if !ok {
		return models.BackendUser{}, errNoUserDocument
	}
	email := doc.Email
	if email == "" {
		email = account.Email
	}
	if err := s.users.SaveUser(ctx, models.BackendUser{FirebaseUID: account.UID, Email: email, FullName: doc.Username}); err != nil {
		return models.BackendUser{}, err
	}
	user, err := s.resolveUser(ctx, account.UID)
	if err != nil {
		return models.BackendUser{}, err
	}
	s.log.Info("login.repair", "", "backend user registered from user document", "auth_uid", account.UID)
	return user, nil
}

func (s *Service) resolveUser(ctx context.Context, authUID string) (models.BackendUser, error) {
	user, err := s.users.LookupByAuthUID(ctx, authUID)
	if err != nil {
		return models.BackendUser{}, err
	}
	if user.ID <= 0 {
		return models.BackendUser{}, errMissingUserID
	}
	return user, nil
}

func (s *Service) persist(session models.Session) error {
	if err := s.sessions.Save(session); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	s.notify(session)
	return nil
}

func (s *Service) notify(session models.Session) {
	if s.onSession != nil {
		s.onSession(session)
	}
}

func (s *Service) fail(kind contracts.FlowErrorKind, op, authUID string, err error) error {
	s.log.Error(contracts.ErrorCategory(err), err, op, "", "auth_uid", authUID)
	return contracts.NewFlowError(kind, op, err)
}

func newSession(user models.BackendUser, account models.AuthAccount, now time.Time) models.Session {
	session := models.Session{
		UserID:       user.ID,
		AuthUID:      account.UID,
		Email:        account.Email,
		DisplayName:  strings.TrimSpace(account.DisplayName),
		IDToken:      account.IDToken,
		RefreshToken: account.RefreshToken,
		CreatedAt:    now,
	}
	if session.Email == "" {
		session.Email = user.Email
	}
	if account.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(account.ExpiresIn)
	}
	return session
}
