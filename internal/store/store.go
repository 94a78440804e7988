// Package store defines the durable record store for signing entities.
// Implementations must provide point lookups, foreign-key lookups and the
// two atomic conditional updates the coordinator relies on: the document
// status transition and the signer has-signed flip.
package store

import (
	"context"
	"time"

	"github.com/quillsign/quillsign/internal/models"
)

// RecordStore is the persistence contract for documents, signers, fields and
// audit events. Entities are plain values with no live back-references;
// callers fetch related records explicitly.
type RecordStore interface {
	// CreateDocument persists a new document and fills in its ID.
	CreateDocument(ctx context.Context, doc *models.Document) error
	// Document returns the document by ID or models.ErrNotFound.
	Document(ctx context.Context, id string) (models.Document, error)
	// DocumentsByOwner returns all documents owned by ownerID.
	DocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	// TransitionDocument atomically moves the document's status from one
	// phase to the next. It returns models.ErrInvalidState when the current
	// status is not `from`; exactly one concurrent caller can win a given
	// transition.
	TransitionDocument(ctx context.Context, id string, from, to models.DocumentStatus) error

	// CreateSigner persists a new signer and fills in its ID.
	CreateSigner(ctx context.Context, s *models.Signer) error
	// SignerByToken resolves the capability token or returns models.ErrNotFound.
	SignerByToken(ctx context.Context, token string) (models.Signer, error)
	// SignersByDocument returns all signers of a document.
	SignersByDocument(ctx context.Context, documentID string) ([]models.Signer, error)
	// SignerByEmail returns the signer with the given email on a document.
	SignerByEmail(ctx context.Context, documentID, email string) (models.Signer, error)
	// MarkSigned atomically flips has-signed to true and records the signing
	// time. Returns models.ErrAlreadySigned if the flag was already set; the
	// prior signed-at value is left untouched in that case.
	MarkSigned(ctx context.Context, signerID string, at time.Time) error

	// UpsertField stores the field for its (document, signer) pair, replacing
	// any existing field in place. The surviving field's ID is filled in.
	UpsertField(ctx context.Context, f *models.Field) error
	// FieldsByDocument returns all fields of a document.
	FieldsByDocument(ctx context.Context, documentID string) ([]models.Field, error)
	// FieldsBySigner returns the fields assigned to one signer of a document.
	FieldsBySigner(ctx context.Context, documentID, signerID string) ([]models.Field, error)

	// AppendAudit appends an immutable audit event.
	AppendAudit(ctx context.Context, ev *models.AuditEvent) error
	// AuditByDocument returns a document's audit trail.
	AuditByDocument(ctx context.Context, documentID string) ([]models.AuditEvent, error)
}
