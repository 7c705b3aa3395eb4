package devapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type updateRequest struct {
	IDToken     string  `json:"idToken"`
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoUrl"`
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupUser struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_EMAIL")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeIdentityError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(w, r, "identity.signUp", err)
		return
	}
	account := Account{
		UID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeIdentityError(w, http.StatusBadRequest, "EMAIL_EXISTS")
			return
		}
		s.internalError(w, r, "identity.signUp", err)
		return
	}
	s.issueTokens(w, r, account)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	account, err := s.store.AccountByEmail(r.Context(), req.Email)
	if errors.Is(err, ErrNotFound) {
		writeIdentityError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	}
	if err != nil {
		s.internalError(w, r, "identity.signIn", err)
		return
	}
	if bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)) != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_PASSWORD")
		return
	}
	s.issueTokens(w, r, account)
}

func (s *Server) handleAccountUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	account, ok := s.accountForToken(w, r, req.IDToken)
	if !ok {
		return
	}
	if err := s.store.UpdateAccountProfile(r.Context(), account.UID, req.DisplayName, req.PhotoURL); err != nil {
		s.internalError(w, r, "identity.update", err)
		return
	}
	updated, err := s.store.AccountByUID(r.Context(), account.UID)
	if err != nil {
		s.internalError(w, r, "identity.update", err)
		return
	}
	writeJSON(w, http.StatusOK, lookupUser{
		LocalID:     updated.UID,
		Email:       updated.Email,
		DisplayName: updated.DisplayName,
		PhotoURL:    updated.PhotoURL,
	})
}

func (s *Server) handleAccountLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	account, ok := s.accountForToken(w, r, req.IDToken)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]lookupUser{"users": {{
		LocalID:     account.UID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.PhotoURL,
	}}})
}

func (s *Server) accountForToken(w http.ResponseWriter, r *http.Request, token string) (Account, bool) {
	uid, err := s.store.TokenOwner(r.Context(), strings.TrimSpace(token), s.now())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.internalError(w, r, "identity.token", err)
			return Account{}, false
		}
		writeIdentityError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return Account{}, false
	}
	account, err := s.store.AccountByUID(r.Context(), uid)
	if errors.Is(err, ErrNotFound) {
		writeIdentityError(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return Account{}, false
	}
	if err != nil {
		s.internalError(w, r, "identity.token", err)
		return Account{}, false
	}
	return account, true
}

func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, account Account) {
	idToken := "tok_" + uuid.NewString()
	if err := s.store.SaveToken(r.Context(), idToken, account.UID, s.now().Add(s.tokenTTL)); err != nil {
		s.internalError(w, r, "identity.token", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		LocalID:      account.UID,
		Email:        account.Email,
		DisplayName:  account.DisplayName,
		IDToken:      idToken,
		RefreshToken: "ref_" + uuid.NewString(),
		ExpiresIn:    strconv.Itoa(int(s.tokenTTL.Seconds())),
	})
}

// writeIdentityError uses the identity toolkit error envelope.
func writeIdentityError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}
