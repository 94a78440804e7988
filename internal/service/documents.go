// Package service exposes the owner-facing document operations: upload,
// listing, signer and field management, sending, and download. Lifecycle
// transitions delegate to the coordinator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/blob"
	"github.com/quillsign/quillsign/internal/coordinator"
	"github.com/quillsign/quillsign/internal/models"
	"github.com/quillsign/quillsign/internal/store"
)

type Documents struct {
	records store.RecordStore
	blobs   blob.Store
	coord   *coordinator.Coordinator
	now     func() time.Time
}

func NewDocuments(records store.RecordStore, blobs blob.Store, coord *coordinator.Coordinator) *Documents {
	return &Documents{records: records, blobs: blobs, coord: coord, now: time.Now}
}

// CreateDraft stores the uploaded bytes and creates the draft record.
func (d *Documents) CreateDraft(ctx context.Context, ownerID, filename string, original []byte) (models.Document, error) {
	doc := models.Document{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Filename:  filename,
		Status:    models.StatusDraft,
		CreatedAt: d.now(),
	}
	doc.FileKey = blob.OriginalKey(doc.ID, filename)

	if err := d.blobs.Put(ctx, doc.FileKey, original); err != nil {
		return models.Document{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := d.records.CreateDocument(ctx, &doc); err != nil {
		return models.Document{}, err
	}
	slog.Info("Draft created.", "documentId", doc.ID, "filename", filename)
	return doc, nil
}

// RegisterUploaded creates a draft record for bytes that already live in the
// artifact store (files dropped straight into the uploads bucket).
func (d *Documents) RegisterUploaded(ctx context.Context, ownerID, filename, fileKey string) (models.Document, error) {
	doc := models.Document{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Filename:  filename,
		FileKey:   fileKey,
		Status:    models.StatusDraft,
		CreatedAt: d.now(),
	}
	if err := d.records.CreateDocument(ctx, &doc); err != nil {
		return models.Document{}, err
	}
	slog.Info("Uploaded object registered as draft.", "documentId", doc.ID, "fileKey", fileKey)
	return doc, nil
}

// List returns the documents owned by ownerID.
func (d *Documents) List(ctx context.Context, ownerID string) ([]models.Document, error) {
	return d.records.DocumentsByOwner(ctx, ownerID)
}

// Get returns a document owned by ownerID, or models.ErrNotFound.
func (d *Documents) Get(ctx context.Context, documentID, ownerID string) (models.Document, error) {
	doc, err := d.records.Document(ctx, documentID)
	if err != nil {
		return models.Document{}, err
	}
	if doc.OwnerID != ownerID {
		return models.Document{}, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return doc, nil
}

// AddSigner adds a required party to a document and auto-creates their
// default field placement. Rejected with models.ErrInvalidState once the
// document is completed.
func (d *Documents) AddSigner(ctx context.Context, documentID, ownerID, email, name string) (models.Signer, error) {
	doc, err := d.Get(ctx, documentID, ownerID)
	if err != nil {
		return models.Signer{}, err
	}
	if doc.Status == models.StatusCompleted {
		return models.Signer{}, fmt.Errorf("document %s is completed: %w", documentID, models.ErrInvalidState)
	}

	signer := models.Signer{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Email:      email,
		Name:       name,
		Token:      uuid.NewString(),
	}
	if err := d.records.CreateSigner(ctx, &signer); err != nil {
		return models.Signer{}, err
	}

	field := models.DefaultField(documentID, signer.ID)
	if err := d.records.UpsertField(ctx, &field); err != nil {
		return models.Signer{}, err
	}
	slog.Info("Signer added.", "documentId", documentID, "signerId", signer.ID)
	return signer, nil
}

// AddOrReplaceField places the field for the signer identified by email,
// replacing any existing placement for that (document, signer) pair.
func (d *Documents) AddOrReplaceField(ctx context.Context, documentID, ownerID string, req models.AddFieldRequest) (models.Field, error) {
	doc, err := d.Get(ctx, documentID, ownerID)
	if err != nil {
		return models.Field{}, err
	}
	if doc.Status == models.StatusCompleted {
		return models.Field{}, fmt.Errorf("document %s is completed: %w", documentID, models.ErrInvalidState)
	}
	signer, err := d.records.SignerByEmail(ctx, documentID, req.SignerEmail)
	if err != nil {
		return models.Field{}, err
	}

	fieldType := req.Type
	if fieldType == "" {
		fieldType = models.FieldSignature
	}
	field := models.Field{
		DocumentID:  documentID,
		SignerID:    signer.ID,
		PageNumber:  req.PageNumber,
		X:           req.X,
		Y:           req.Y,
		Type:        fieldType,
		IncludeName: req.IncludeName,
		IncludeDate: req.IncludeDate,
	}
	if err := d.records.UpsertField(ctx, &field); err != nil {
		return models.Field{}, err
	}
	return field, nil
}

// AuditTrail returns the lifecycle events of a document owned by ownerID in
// chronological order.
func (d *Documents) AuditTrail(ctx context.Context, documentID, ownerID string) ([]models.AuditEvent, error) {
	if _, err := d.Get(ctx, documentID, ownerID); err != nil {
		return nil, err
	}
	return d.records.AuditByDocument(ctx, documentID)
}

// Send transitions the document to Sent via the coordinator.
func (d *Documents) Send(ctx context.Context, documentID, ownerID string, meta models.ClientMeta) ([]models.SigningLink, error) {
	return d.coord.Send(ctx, documentID, ownerID, meta)
}

// DownloadByToken serves the document a capability token belongs to:
// finalized bytes when completed, original bytes otherwise.
func (d *Documents) DownloadByToken(ctx context.Context, token string) (string, []byte, error) {
	signer, err := d.records.SignerByToken(ctx, token)
	if err != nil {
		return "", nil, err
	}
	doc, err := d.records.Document(ctx, signer.DocumentID)
	if err != nil {
		return "", nil, err
	}
	return d.Download(ctx, doc)
}

// Download returns the finalized bytes once the document is completed, the
// original bytes otherwise. If the finalized artifact is missing despite the
// status, the original is served as a fallback.
func (d *Documents) Download(ctx context.Context, doc models.Document) (filename string, data []byte, err error) {
	if doc.Status == models.StatusCompleted {
		data, err = d.blobs.Get(ctx, blob.FinalizedKey(doc.ID))
		if err == nil {
			return "signed_" + doc.Filename, data, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return "", nil, err
		}
		slog.Warn("Finalized artifact missing, serving original.", "documentId", doc.ID)
	}
	data, err = d.blobs.Get(ctx, doc.FileKey)
	if err != nil {
		return "", nil, err
	}
	return doc.Filename, data, nil
}
