package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quillsign/quillsign/internal/models"
)

// Firestore collection names.
const (
	colDocuments = "documents"
	colSigners   = "signers"
	colFields    = "fields"
	colAudit     = "audit_events"
)

// Firestore implements RecordStore on Cloud Firestore. The two conditional
// updates run inside Firestore transactions so concurrent writers serialize
// on the record itself.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (s *Firestore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, err := s.client.Collection(colDocuments).Doc(doc.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document record: %w", err)
	}
	return nil
}

func (s *Firestore) Document(ctx context.Context, id string) (models.Document, error) {
	snap, err := s.client.Collection(colDocuments).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
		}
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return models.Document{}, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func (s *Firestore) DocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	it := s.client.Collection(colDocuments).Where("ownerId", "==", ownerID).Documents(ctx)
	defer it.Stop()

	var docs []models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents for owner %s: %w", ownerID, err)
		}
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		doc.ID = snap.Ref.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Firestore) TransitionDocument(ctx context.Context, id string, from, to models.DocumentStatus) error {
	ref := s.client.Collection(colDocuments).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
			}
			return err
		}
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Status != from {
			return fmt.Errorf("document %s is %s, not %s: %w", id, doc.Status, from, models.ErrInvalidState)
		}
		return tx.Update(ref, []firestore.Update{{Path: "status", Value: to}})
	})
}

func (s *Firestore) CreateSigner(ctx context.Context, signer *models.Signer) error {
	if signer.ID == "" {
		signer.ID = uuid.NewString()
	}
	if _, err := s.client.Collection(colSigners).Doc(signer.ID).Create(ctx, signer); err != nil {
		return fmt.Errorf("failed to create signer record: %w", err)
	}
	return nil
}

func (s *Firestore) SignerByToken(ctx context.Context, token string) (models.Signer, error) {
	snaps, err := s.client.Collection(colSigners).Where("token", "==", token).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return models.Signer{}, fmt.Errorf("failed to query signer by token: %w", err)
	}
	if len(snaps) == 0 {
		return models.Signer{}, fmt.Errorf("signer token: %w", models.ErrNotFound)
	}
	var signer models.Signer
	if err := snaps[0].DataTo(&signer); err != nil {
		return models.Signer{}, fmt.Errorf("failed to decode signer %s: %w", snaps[0].Ref.ID, err)
	}
	signer.ID = snaps[0].Ref.ID
	return signer, nil
}

func (s *Firestore) SignersByDocument(ctx context.Context, documentID string) ([]models.Signer, error) {
	it := s.client.Collection(colSigners).Where("documentId", "==", documentID).Documents(ctx)
	defer it.Stop()

	var signers []models.Signer
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list signers for document %s: %w", documentID, err)
		}
		var signer models.Signer
		if err := snap.DataTo(&signer); err != nil {
			return nil, fmt.Errorf("failed to decode signer %s: %w", snap.Ref.ID, err)
		}
		signer.ID = snap.Ref.ID
		signers = append(signers, signer)
	}
	return signers, nil
}

func (s *Firestore) SignerByEmail(ctx context.Context, documentID, email string) (models.Signer, error) {
	snaps, err := s.client.Collection(colSigners).
		Where("documentId", "==", documentID).
		Where("email", "==", email).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return models.Signer{}, fmt.Errorf("failed to query signer by email: %w", err)
	}
	if len(snaps) == 0 {
		return models.Signer{}, fmt.Errorf("signer %s on document %s: %w", email, documentID, models.ErrNotFound)
	}
	var signer models.Signer
	if err := snaps[0].DataTo(&signer); err != nil {
		return models.Signer{}, fmt.Errorf("failed to decode signer %s: %w", snaps[0].Ref.ID, err)
	}
	signer.ID = snaps[0].Ref.ID
	return signer, nil
}

func (s *Firestore) MarkSigned(ctx context.Context, signerID string, at time.Time) error {
	ref := s.client.Collection(colSigners).Doc(signerID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("signer %s: %w", signerID, models.ErrNotFound)
			}
			return err
		}
		var signer models.Signer
		if err := snap.DataTo(&signer); err != nil {
			return err
		}
		if signer.HasSigned {
			return fmt.Errorf("signer %s: %w", signerID, models.ErrAlreadySigned)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "hasSigned", Value: true},
			{Path: "signedAt", Value: at},
		})
	})
}

func (s *Firestore) UpsertField(ctx context.Context, f *models.Field) error {
	snaps, err := s.client.Collection(colFields).
		Where("documentId", "==", f.DocumentID).
		Where("signerId", "==", f.SignerID).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query existing field: %w", err)
	}
	if len(snaps) > 0 {
		f.ID = snaps[0].Ref.ID
	} else if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, err := s.client.Collection(colFields).Doc(f.ID).Set(ctx, f); err != nil {
		return fmt.Errorf("failed to upsert field: %w", err)
	}
	return nil
}

func (s *Firestore) FieldsByDocument(ctx context.Context, documentID string) ([]models.Field, error) {
	return s.fields(ctx, s.client.Collection(colFields).Where("documentId", "==", documentID))
}

func (s *Firestore) FieldsBySigner(ctx context.Context, documentID, signerID string) ([]models.Field, error) {
	q := s.client.Collection(colFields).
		Where("documentId", "==", documentID).
		Where("signerId", "==", signerID)
	return s.fields(ctx, q)
}

func (s *Firestore) fields(ctx context.Context, q firestore.Query) ([]models.Field, error) {
	it := q.Documents(ctx)
	defer it.Stop()

	var fields []models.Field
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list fields: %w", err)
		}
		var f models.Field
		if err := snap.DataTo(&f); err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", snap.Ref.ID, err)
		}
		f.ID = snap.Ref.ID
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *Firestore) AppendAudit(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if _, err := s.client.Collection(colAudit).Doc(ev.ID).Create(ctx, ev); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (s *Firestore) AuditByDocument(ctx context.Context, documentID string) ([]models.AuditEvent, error) {
	it := s.client.Collection(colAudit).
		Where("documentId", "==", documentID).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var events []models.AuditEvent
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list audit events for document %s: %w", documentID, err)
		}
		var ev models.AuditEvent
		if err := snap.DataTo(&ev); err != nil {
			return nil, fmt.Errorf("failed to decode audit event %s: %w", snap.Ref.ID, err)
		}
		ev.ID = snap.Ref.ID
		events = append(events, ev)
	}
	return events, nil
}
