package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tokligence/docchat/internal/document"
	"github.com/tokligence/docchat/internal/hooks"
	"github.com/tokligence/docchat/internal/session"
	"github.com/tokligence/docchat/internal/store"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 8 << 20

// uploadFields are the accepted multipart field names, in order of preference.
var uploadFields = []string{"file", "pdf"}

var errNoFile = errors.New("no file uploaded")

type uploadResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Preview string `json:"preview"`
	Text    string `json:"text"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := uploadedFile(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	extracted, err := document.Extract(header.Filename, data)
	switch {
	case errors.Is(err, document.ErrUnsupportedType):
		s.respondError(w, http.StatusUnsupportedMediaType, err)
		return
	case err != nil:
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("failed to extract text from file: %w", err))
		return
	}

	preview := document.Preview(extracted.Text, s.previewWords)
	doc, err := s.store.CreateDocument(r.Context(), store.Document{
		Name:    extracted.Name,
		Kind:    string(extracted.Kind),
		Text:    extracted.Text,
		Preview: preview,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.sessions.Put(doc.ID, session.New(preview))
	s.metrics.RecordUpload(int64(len(data)))
	s.logger.Infof("uploaded document %s (%s, %d bytes, %d chars)", doc.ID, doc.Name, len(data), len(doc.Text))

	s.respondJSON(w, http.StatusOK, uploadResponse{
		ID:      doc.ID,
		Name:    doc.Name,
		Kind:    doc.Kind,
		Preview: doc.Preview,
		Text:    doc.Text,
	})
	s.emit(r.Context(), hooks.EventDocumentUploaded, doc.ID, map[string]any{
		"name":  doc.Name,
		"kind":  doc.Kind,
		"bytes": len(data),
	})
}

func uploadedFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range uploadFields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read form file %q: %w", field, err)
		}
		return file, header, nil
	}
	return nil, nil, errNoFile
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		s.respondError(w, storeStatus(err), err)
		return
	}
	s.sessions.Delete(id)
	s.logger.Infof("deleted document %s", id)
	s.respondJSON(w, http.StatusNoContent, nil)
	s.emit(r.Context(), hooks.EventDocumentDeleted, id, nil)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), doc.ID, limit)
	if err != nil {
		s.respondError(w, storeStatus(err), err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	st, _ := s.sessions.Get(doc.ID)
	s.respondJSON(w, http.StatusOK, st)
}

// loadDocument fetches the {id} document and makes sure a session exists for
// it. On failure the error response has already been written.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, storeStatus(err), err)
		return store.Document{}, false
	}
	if _, ok := s.sessions.Get(doc.ID); !ok {
		s.sessions.Put(doc.ID, restoreSession(doc))
	}
	return doc, true
}

// restoreSession rebuilds the session of a stored document, e.g. after a
// restart.
func restoreSession(doc store.Document) session.State {
	st := session.New(doc.Preview)
	if doc.Summary != "" {
		st = st.WithSummary()
	}
	if len(doc.Challenge) > 0 {
		st = st.WithChallenge(doc.Challenge)
		for i, p := range doc.Challenge {
			if p.Evaluation == nil {
				break
			}
			st = st.WithEvaluation(i, p.UserAnswer, p.Evaluation)
		}
	}
	return st
}
