package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/ratelimiter"
	"verisay/go-client/pkg/models"
)

const (
	MethodSignUp             = "accounts:signUp"
	MethodSignInWithPassword = "accounts:signInWithPassword"
	MethodUpdate             = "accounts:update"
	MethodLookup             = "accounts:lookup"
)

var ErrAccountNotFound = errors.New("identity account not found")

// Error is an identity toolkit failure such as EMAIL_EXISTS or INVALID_PASSWORD.
type Error struct {
	StatusCode int
	Code       string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("identity toolkit error: status=%d code=%s", e.StatusCode, e.Code)
}

// Client speaks the Identity Toolkit REST protocol; the endpoint may point at an emulator.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimiter.MapLimiter
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLimiter(l *ratelimiter.MapLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
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
	IDToken           string `json:"idToken"`
	DisplayName       string `json:"displayName,omitempty"`
	PhotoURL          string `json:"photoUrl,omitempty"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoUrl"`
	} `json:"users"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (models.AuthAccount, error) {
	return c.credentials(ctx, MethodSignUp, email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (models.AuthAccount, error) {
	return c.credentials(ctx, MethodSignInWithPassword, email, password)
}

func (c *Client) UpdateProfile(ctx context.Context, idToken string, update models.AuthProfileUpdate) error {
	return c.call(ctx, MethodUpdate, updateRequest{
		IDToken:     idToken,
		DisplayName: strings.TrimSpace(update.DisplayName),
		PhotoURL:    strings.TrimSpace(update.PhotoURL),
	}, nil)
}

func (c *Client) Lookup(ctx context.Context, idToken string) (models.AuthAccount, error) {
	var out lookupResponse
	if err := c.call(ctx, MethodLookup, lookupRequest{IDToken: idToken}, &out); err != nil {
		return models.AuthAccount{}, err
	}
	if len(out.Users) == 0 {
		return models.AuthAccount{}, ErrAccountNotFound
	}
	u := out.Users[0]
	return models.AuthAccount{
		UID:         u.LocalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		IDToken:     idToken,
	}, nil
}

func (c *Client) credentials(ctx context.Context, method, email, password string) (models.AuthAccount, error) {
	var out tokenResponse
	err := c.call(ctx, method, credentialsRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		ReturnSecureToken: true,
	}, &out)
	if err != nil {
		return models.AuthAccount{}, err
	}
	if out.LocalID == "" || out.IDToken == "" {
		return models.AuthAccount{}, contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, fmt.Errorf("%s: incomplete token response", method))
	}
	var expiresIn time.Duration
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		expiresIn = time.Duration(secs) * time.Second
	}
	return models.AuthAccount{
		UID:          out.LocalID,
		Email:        out.Email,
		DisplayName:  out.DisplayName,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	if err := c.limiter.Wait(ctx, method); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	u := c.endpoint + "/" + method + "?" + url.Values{"key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, redactKey(err, c.apiKey))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(raw, &envelope)
		code := strings.TrimSpace(envelope.Error.Message)
		if i := strings.Index(code, " "); i > 0 {
			code = code[:i]
		}
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, &Error{StatusCode: resp.StatusCode, Code: code})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, fmt.Errorf("decode %s response: %w", method, err))
	}
	return nil
}

// redactKey keeps the api key out of transport errors, which quote the request URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "[REDACTED]"))
}
