package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/ratelimiter"
	"verisay/go-client/pkg/models"
)

const (
	PathAgreementsSave     = "/api/agreements/save"
	PathAudioRecordsSave   = "/api/audiorecords/save"
	PathFaceIdentitiesSave = "/api/faceidentities/save"
	PathUsersByUIDPrefix   = "/api/users/uid/"
	PathUsersSave          = "/api/users/save"

	HeaderRequestID = "X-Request-ID"

	maxErrorBody = 4 << 10
)

var ErrMissingID = errors.New("response carries no id")

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Path       string
	RequestID  string
	Body       string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Body == "" {
		return fmt.Sprintf("backend api error: status=%d path=%s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("backend api error: status=%d path=%s body=%s", e.StatusCode, e.Path, e.Body)
}

// Client talks to the agreement backend. Every call is attempted exactly once.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *ratelimiter.MapLimiter
	token        func() string
	newRequestID func() string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLimiter(l *ratelimiter.MapLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTokenSource supplies the bearer token; an empty token sends no Authorization header.
func WithTokenSource(token func() string) Option {
	return func(c *Client) { c.token = token }
}

func WithRequestIDs(newID func() string) Option {
	return func(c *Client) { c.newRequestID = newID }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		newRequestID: NewRequestID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NewRequestID() string {
	return "req_" + uuid.NewString()
}

type agreementRequest struct {
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type agreementResponse struct {
	ID        *int64 `json:"id"`
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func (c *Client) CreateAgreement(ctx context.Context, draft models.AgreementDraft) (models.AgreementRecord, error) {
	body, err := json.Marshal(agreementRequest{
		UserID:    draft.OwnerID,
		Type:      string(draft.Type),
		Status:    string(draft.Status),
		CreatedAt: draft.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return models.AgreementRecord{}, err
	}
	var out agreementResponse
	if err := c.do(ctx, http.MethodPost, PathAgreementsSave, "application/json", body, &out); err != nil {
		return models.AgreementRecord{}, err
	}
	if out.ID == nil || *out.ID == 0 {
		return models.AgreementRecord{}, contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, ErrMissingID)
	}
	// The draft is authoritative for fields the server echoes back.
	return models.AgreementRecord{
		ID:        *out.ID,
		OwnerID:   draft.OwnerID,
		Type:      draft.Type,
		Status:    draft.Status,
		CreatedAt: draft.CreatedAt,
	}, nil
}

type filePart struct {
	field       string
	filename    string
	contentType string
	path        string
}

func (c *Client) UploadAudio(ctx context.Context, agreementID int64, audio models.CaptureResult) error {
	return c.uploadMultipart(ctx, PathAudioRecordsSave, agreementID, []filePart{
		{field: "files", filename: "recording.wav", contentType: "audio/x-wav", path: audio.Handle},
	})
}

func (c *Client) UploadFaces(ctx context.Context, agreementID int64, face1, face2 models.CaptureResult) error {
	return c.uploadMultipart(ctx, PathFaceIdentitiesSave, agreementID, []filePart{
		{field: "file1", filename: "face1.jpg", contentType: "image/jpeg", path: face1.Handle},
		{field: "file2", filename: "face2.jpg", contentType: "image/jpeg", path: face2.Handle},
	})
}

func (c *Client) LookupByAuthUID(ctx context.Context, authUID string) (models.BackendUser, error) {
	authUID = strings.TrimSpace(authUID)
	if authUID == "" {
		return models.BackendUser{}, errors.New("auth uid is empty")
	}
	var out models.BackendUser
	if err := c.do(ctx, http.MethodGet, PathUsersByUIDPrefix+url.PathEscape(authUID), "", nil, &out); err != nil {
		return models.BackendUser{}, err
	}
	if out.ID == 0 {
		return models.BackendUser{}, contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, ErrMissingID)
	}
	return out, nil
}

func (c *Client) SaveUser(ctx context.Context, user models.BackendUser) error {
	body, err := json.Marshal(struct {
		FirebaseUID string `json:"firebaseUid"`
		Email       string `json:"email"`
		FullName    string `json:"fullName"`
	}{user.FirebaseUID, user.Email, user.FullName})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, PathUsersSave, "application/json", body, nil)
}

func (c *Client) uploadMultipart(ctx context.Context, path string, agreementID int64, files []filePart) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("agreementId", strconv.FormatInt(agreementID, 10)); err != nil {
		return err
	}
	for _, f := range files {
		if err := writeFilePart(w, f); err != nil {
			return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, w.FormDataContentType(), buf.Bytes(), nil)
}

func writeFilePart(w *multipart.Writer, f filePart) error {
	src, err := os.Open(models.LocalPath(f.path))
	if err != nil {
		return fmt.Errorf("open %s: %w", f.field, err)
	}
	defer func() { _ = src.Close() }()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
	h.Set("Content-Type", f.contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("read %s: %w", f.field, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx, method+" "+limiterKey(path)); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	requestID := c.newRequestID()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		if token := strings.TrimSpace(c.token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, &Error{
			StatusCode: resp.StatusCode,
			Path:       path,
			RequestID:  requestID,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryAPI, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

// limiterKey folds per-user paths into one bucket.
func limiterKey(path string) string {
	if strings.HasPrefix(path, PathUsersByUIDPrefix) {
		return PathUsersByUIDPrefix
	}
	return path
}
