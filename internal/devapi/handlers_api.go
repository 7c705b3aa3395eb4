package devapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"verisay/go-client/pkg/models"
)

type agreementRequest struct {
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleAgreementSave(w http.ResponseWriter, r *http.Request) {
	var req agreementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateAgreement(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agreement, err := s.store.CreateAgreement(r.Context(), Agreement{
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		s.internalError(w, r, "agreements.save", err)
		return
	}
	writeJSON(w, http.StatusOK, agreement)
}

func validateAgreement(req agreementRequest) error {
	if req.UserID <= 0 {
		return errors.New("userId is required")
	}
	if !models.AgreementType(req.Type).Valid() {
		return fmt.Errorf("unknown agreement type %q", req.Type)
	}
	if !models.AgreementStatus(req.Status).Valid() {
		return fmt.Errorf("unknown agreement status %q", req.Status)
	}
	if _, err := time.Parse(time.RFC3339Nano, req.CreatedAt); err != nil {
		return fmt.Errorf("createdAt must be RFC 3339: %w", err)
	}
	return nil
}

type filePart struct {
	field       string
	contentType string
}

func (s *Server) handleAudioSave(w http.ResponseWriter, r *http.Request) {
	s.handleAttachments(w, r, "audiorecords.save", []filePart{
		{field: "files", contentType: "audio/"},
	})
}

func (s *Server) handleFacesSave(w http.ResponseWriter, r *http.Request) {
	s.handleAttachments(w, r, "faceidentities.save", []filePart{
		{field: "file1", contentType: "image/"},
		{field: "file2", contentType: "image/"},
	})
}

// handleAttachments requires every listed part to be present with a matching content type
// and stores them together against an existing agreement.
func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request, op string, parts []filePart) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	agreementID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("agreementId")), 10, 64)
	if err != nil || agreementID <= 0 {
		writeError(w, http.StatusBadRequest, "agreementId is required")
		return
	}
	exists, err := s.store.AgreementExists(r.Context(), agreementID)
	if err != nil {
		s.internalError(w, r, op, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "agreement not found")
		return
	}

	stored := make([]Attachment, 0, len(parts))
	for _, p := range parts {
		att, err := readPart(r.MultipartForm, p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		att.AgreementID = agreementID
		stored = append(stored, att)
	}
	if err := s.store.SaveAttachments(r.Context(), stored, s.now()); err != nil {
		s.internalError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agreementId": agreementID, "stored": len(stored)})
}

func readPart(form *multipart.Form, p filePart) (Attachment, error) {
	headers := form.File[p.field]
	if len(headers) != 1 {
		return Attachment{}, fmt.Errorf("expected exactly one %s part", p.field)
	}
	h := headers[0]
	contentType := h.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, p.contentType) {
		return Attachment{}, fmt.Errorf("%s has content type %q", p.field, contentType)
	}
	f, err := h.Open()
	if err != nil {
		return Attachment{}, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return Attachment{}, err
	}
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("%s is empty", p.field)
	}
	return Attachment{Field: p.field, Filename: h.Filename, ContentType: contentType, Data: data}, nil
}

func (s *Server) handleUserByUID(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(mux.Vars(r)["uid"])
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}
	user, err := s.store.UserByFirebaseUID(r.Context(), uid)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "users.uid", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUserSave(w http.ResponseWriter, r *http.Request) {
	var req User
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.FirebaseUID = strings.TrimSpace(req.FirebaseUID)
	if req.FirebaseUID == "" {
		writeError(w, http.StatusBadRequest, "firebaseUid is required")
		return
	}
	user, err := s.store.SaveUser(r.Context(), req, s.now())
	if err != nil {
		s.internalError(w, r, "users.save", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.Error("storage", err, op, requestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
