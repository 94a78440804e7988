package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/models"
)

// Memory is an in-memory RecordStore for tests and local runs. All conditional
// updates are guarded by a single mutex, which gives the same atomicity the
// Firestore transactions provide.
type Memory struct {
	mu        sync.Mutex
	documents map[string]models.Document
	signers   map[string]models.Signer
	fields    map[string]models.Field
	audit     []models.AuditEvent
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string]models.Document),
		signers:   make(map[string]models.Signer),
		fields:    make(map[string]models.Field),
	}
}

func (s *Memory) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.documents[doc.ID] = *doc
	return nil
}

func (s *Memory) Document(_ context.Context, id string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return doc, nil
}

func (s *Memory) DocumentsByOwner(_ context.Context, ownerID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []models.Document
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *Memory) TransitionDocument(_ context.Context, id string, from, to models.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if doc.Status != from {
		return fmt.Errorf("document %s is %s, not %s: %w", id, doc.Status, from, models.ErrInvalidState)
	}
	doc.Status = to
	s.documents[id] = doc
	return nil
}

func (s *Memory) CreateSigner(_ context.Context, signer *models.Signer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if signer.ID == "" {
		signer.ID = uuid.NewString()
	}
	s.signers[signer.ID] = *signer
	return nil
}

func (s *Memory) SignerByToken(_ context.Context, token string) (models.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, signer := range s.signers {
		if signer.Token == token {
			return signer, nil
		}
	}
	return models.Signer{}, fmt.Errorf("signer token: %w", models.ErrNotFound)
}

func (s *Memory) SignersByDocument(_ context.Context, documentID string) ([]models.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var signers []models.Signer
	for _, signer := range s.signers {
		if signer.DocumentID == documentID {
			signers = append(signers, signer)
		}
	}
	return signers, nil
}

func (s *Memory) SignerByEmail(_ context.Context, documentID, email string) (models.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, signer := range s.signers {
		if signer.DocumentID == documentID && signer.Email == email {
			return signer, nil
		}
	}
	return models.Signer{}, fmt.Errorf("signer %s on document %s: %w", email, documentID, models.ErrNotFound)
}

func (s *Memory) MarkSigned(_ context.Context, signerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	signer, ok := s.signers[signerID]
	if !ok {
		return fmt.Errorf("signer %s: %w", signerID, models.ErrNotFound)
	}
	if signer.HasSigned {
		return fmt.Errorf("signer %s: %w", signerID, models.ErrAlreadySigned)
	}
	signer.HasSigned = true
	signer.SignedAt = &at
	s.signers[signerID] = signer
	return nil
}

func (s *Memory) UpsertField(_ context.Context, f *models.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.fields {
		if existing.DocumentID == f.DocumentID && existing.SignerID == f.SignerID {
			f.ID = id
			s.fields[id] = *f
			return nil
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.fields[f.ID] = *f
	return nil
}

func (s *Memory) FieldsByDocument(_ context.Context, documentID string) ([]models.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fields []models.Field
	for _, f := range s.fields {
		if f.DocumentID == documentID {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func (s *Memory) FieldsBySigner(_ context.Context, documentID, signerID string) ([]models.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fields []models.Field
	for _, f := range s.fields {
		if f.DocumentID == documentID && f.SignerID == signerID {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func (s *Memory) AppendAudit(_ context.Context, ev *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	s.audit = append(s.audit, *ev)
	return nil
}

func (s *Memory) AuditByDocument(_ context.Context, documentID string) ([]models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []models.AuditEvent
	for _, ev := range s.audit {
		if ev.DocumentID == documentID {
			events = append(events, ev)
		}
	}
	return events, nil
}
