package identitytoolkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verisay/go-client/pkg/models"
)

func TestSignUpParsesTokenResponse(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signUp", r.URL.Path)
		assert.Equal(t, "k-123", r.URL.Query().Get("key"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"localId":"uid-1","email":"a@example.test","idToken":"tok","refreshToken":"ref","expiresIn":"3600"}`)
	}))
	defer ts.Close()

	acct, err := NewClient(ts.URL+"/v1/", "k-123").SignUp(context.Background(), " a@example.test ", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.AuthAccount{
		UID:          "uid-1",
		Email:        "a@example.test",
		IDToken:      "tok",
		RefreshToken: "ref",
		ExpiresIn:    time.Hour,
	}, acct)
	assert.Equal(t, "a@example.test", gotBody["email"])
	assert.Equal(t, true, gotBody["returnSecureToken"])
}

func TestSignInErrorCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"INVALID_PASSWORD : wrong"}}`)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "k").SignIn(context.Background(), "a@example.test", "bad")
	var tkErr *Error
	require.True(t, errors.As(err, &tkErr), "got %v", err)
	assert.Equal(t, "INVALID_PASSWORD", tkErr.Code)
	assert.Equal(t, http.StatusBadRequest, tkErr.StatusCode)
}

func TestUpdateAndLookup(t *testing.T) {
	var updateBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts:update":
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &updateBody)
			_, _ = io.WriteString(w, `{"localId":"uid-1"}`)
		case "/accounts:lookup":
			_, _ = io.WriteString(w, `{"users":[{"localId":"uid-1","email":"a@example.test","displayName":"Alice","photoUrl":"https://cdn.example.test/a.jpg"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	c := NewClient(ts.URL, "k")

	require.NoError(t, c.UpdateProfile(context.Background(), "tok", models.AuthProfileUpdate{DisplayName: "Alice", PhotoURL: "https://cdn.example.test/a.jpg"}))
	assert.Equal(t, "tok", updateBody["idToken"])
	assert.Equal(t, "Alice", updateBody["displayName"])
	assert.Equal(t, "https://cdn.example.test/a.jpg", updateBody["photoUrl"])

	acct, err := c.Lookup(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Alice", acct.DisplayName)
	assert.Equal(t, "https://cdn.example.test/a.jpg", acct.PhotoURL)
}

func TestLookupWithoutUsers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"users":[]}`)
	}))
	defer ts.Close()
	_, err := NewClient(ts.URL, "k").Lookup(context.Background(), "tok")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestTransportErrorDoesNotLeakKey(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	endpoint := ts.URL
	ts.Close()

	_, err := NewClient(endpoint, "super-secret-key").SignIn(context.Background(), "a@example.test", "pw")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}
