package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"verisay/go-client/internal/securestore"
	"verisay/go-client/pkg/models"
)

// SessionStore persists the single session of a data directory.
type SessionStore struct {
	mu     sync.Mutex
	path   string
	secret string
}

func NewSessionStore(path, secret string) *SessionStore {
	return &SessionStore{path: path, secret: strings.TrimSpace(secret)}
}

func (s *SessionStore) Load() (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var session models.Session
	if err := securestore.ReadJSON(s.path, s.secret, &session); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return session, true, nil
}

func (s *SessionStore) Save(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := securestore.WriteJSON(s.path, s.secret, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the persisted session; a missing file is not an error.
func (s *SessionStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
