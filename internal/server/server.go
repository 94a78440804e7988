// Package server is the thin HTTP surface over the document service and the
// signing coordinator. Authentication is an external collaborator: the owner
// identity arrives pre-authenticated in the X-User-ID header, and signers are
// authorized solely by their capability token.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/quillsign/quillsign/internal/coordinator"
	"github.com/quillsign/quillsign/internal/models"
	"github.com/quillsign/quillsign/internal/service"
)

// Uploads larger than this are rejected.
const maxUploadBytes = 32 << 20

type Server struct {
	docs  *service.Documents
	coord *coordinator.Coordinator

	// defaultOwner stands in for a missing X-User-ID header. Set only for
	// local runs; when empty, requests without the header are rejected.
	defaultOwner string
}

func New(docs *service.Documents, coord *coordinator.Coordinator, defaultOwner string) *Server {
	return &Server{docs: docs, coord: coord, defaultOwner: defaultOwner}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents/upload", s.handleUpload)
	mux.HandleFunc("GET /documents", s.handleList)
	mux.HandleFunc("GET /documents/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /documents/{id}/audit", s.handleAudit)
	mux.HandleFunc("POST /documents/{id}/signers", s.handleAddSigner)
	mux.HandleFunc("POST /documents/{id}/fields", s.handleAddField)
	mux.HandleFunc("POST /documents/{id}/send", s.handleSend)
	mux.HandleFunc("GET /sign/download/{token}", s.handleDownloadByToken)
	mux.HandleFunc("GET /sign/{token}", s.handleSignerView)
	mux.HandleFunc("POST /sign/{token}", s.handleSubmit)
	return mux
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("missing file upload: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	doc, err := s.docs.CreateDraft(r.Context(), owner, header.Filename, data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	docs, err := s.docs.List(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	doc, err := s.docs.Get(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filename, data, err := s.docs.Download(r.Context(), doc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	servePDF(w, filename, data)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	events, err := s.docs.AuditTrail(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAddSigner(w http.ResponseWriter, r *http.Request) {
	var req models.AddSignerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	signer, err := s.docs.AddSigner(r.Context(), r.PathValue("id"), owner, req.Email, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signer)
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	var req models.AddFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	field, err := s.docs.AddOrReplaceField(r.Context(), r.PathValue("id"), owner, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}
	links, err := s.docs.Send(r.Context(), r.PathValue("id"), owner, clientMeta(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SendResponse{Message: "Document sent", Links: links})
}

func (s *Server) handleSignerView(w http.ResponseWriter, r *http.Request) {
	view, err := s.coord.ResolveSignerView(r.Context(), r.PathValue("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.SignatureSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	result, err := s.coord.RecordSignature(r.Context(), r.PathValue("token"), []byte(req.SignatureData), clientMeta(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Signed successfully",
		"completed": result.Completed,
	})
}

func (s *Server) handleDownloadByToken(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.docs.DownloadByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	servePDF(w, filename, data)
}

// ownerID resolves the authenticated owner of the request. When no identity
// is present and no local default is configured it writes a 401 and reports
// false; the handler must return without acting.
func (s *Server) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, true
	}
	if s.defaultOwner != "" {
		return s.defaultOwner, true
	}
	writeError(w, fmt.Errorf("missing X-User-ID header"), http.StatusUnauthorized)
	return "", false
}

func clientMeta(r *http.Request) models.ClientMeta {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		host = fwd
	}
	return models.ClientMeta{IPAddress: host, UserAgent: r.UserAgent()}
}

func servePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, err, http.StatusNotFound)
	case errors.Is(err, models.ErrAlreadySigned):
		writeError(w, err, http.StatusConflict)
	case errors.Is(err, models.ErrInvalidState):
		writeError(w, err, http.StatusConflict)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
