// Package coordinator owns the signing state machine: signer and document
// lifecycle transitions, the all-signed completion check, and the
// exactly-once finalization that burns every collected signature into the
// original document.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillsign/quillsign/internal/blob"
	"github.com/quillsign/quillsign/internal/compositor"
	"github.com/quillsign/quillsign/internal/models"
	"github.com/quillsign/quillsign/internal/notify"
	"github.com/quillsign/quillsign/internal/store"
)

// Concurrency cap for fetching signature artifacts during finalization.
const fetchLimit = 4

// Config holds coordinator settings.
type Config struct {
	// SigningBaseURL is the frontend base the signing links point at.
	SigningBaseURL string
}

// Coordinator drives the document/signer lifecycle. The finalize sequence for
// a given document is serialized by a per-document lock in-process and by the
// status compare-and-swap in the record store across processes.
type Coordinator struct {
	records  store.RecordStore
	blobs    blob.Store
	notifier notify.Notifier
	config   Config
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(records store.RecordStore, blobs blob.Store, notifier notify.Notifier, config Config) *Coordinator {
	if config.SigningBaseURL == "" {
		config.SigningBaseURL = "http://localhost:8000"
	}
	return &Coordinator{
		records:  records,
		blobs:    blobs,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SignResult reports the outcome of a signature submission.
type SignResult struct {
	DocumentID string
	SignerID   string
	// Completed is true when this submission was the last one and this call
	// performed the finalization.
	Completed bool
}

// RecordSignature stores a signer's submitted mark and flips their has-signed
// flag. The artifact is written before the flag so a failure between the two
// never leaves has-signed set without stored bytes. A successful submission
// triggers the completion check.
//
// Returns models.ErrNotFound for an unknown token and models.ErrAlreadySigned
// for a duplicate submission; duplicates cause no side effects.
func (c *Coordinator) RecordSignature(ctx context.Context, token string, payload []byte, meta models.ClientMeta) (SignResult, error) {
	signer, err := c.records.SignerByToken(ctx, token)
	if err != nil {
		return SignResult{}, err
	}
	logCtx := slog.With("documentId", signer.DocumentID, "signerId", signer.ID)

	if signer.HasSigned {
		return SignResult{}, fmt.Errorf("signer %s: %w", signer.ID, models.ErrAlreadySigned)
	}
	doc, err := c.records.Document(ctx, signer.DocumentID)
	if err != nil {
		return SignResult{}, err
	}

	// If-absent: a racing duplicate that slipped past the has-signed check
	// must not replace the first submission's stored bytes.
	key := blob.SignatureKey(doc.ID, signer.ID, signer.Token)
	if err := c.blobs.PutIfAbsent(ctx, key, payload); err != nil {
		return SignResult{}, fmt.Errorf("failed to store signature artifact: %w", err)
	}

	signedAt := c.now()
	if err := c.records.MarkSigned(ctx, signer.ID, signedAt); err != nil {
		return SignResult{}, err
	}
	if err := c.records.AppendAudit(ctx, &models.AuditEvent{
		DocumentID: doc.ID,
		Action:     models.ActionSigned,
		Timestamp:  signedAt,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		logCtx.Error("Failed to append SIGNED audit event", "error", err)
	}
	logCtx.Info("Signature recorded.")

	completed, err := c.finalizeIfComplete(ctx, doc.ID)
	if err != nil {
		// The submission itself succeeded and the underlying state is intact,
		// so the completion check can be retried by a later call.
		logCtx.Error("Finalization failed, document remains sent", "error", err)
	}

	return SignResult{DocumentID: doc.ID, SignerID: signer.ID, Completed: completed}, nil
}

// Send transitions a draft document to Sent and returns the signing links for
// out-of-band delivery. Fails with models.ErrInvalidState when the document
// is not a draft, with models.ErrNotFound when documentID doesn't resolve to
// a document owned by ownerID.
func (c *Coordinator) Send(ctx context.Context, documentID, ownerID string, meta models.ClientMeta) ([]models.SigningLink, error) {
	doc, err := c.records.Document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}

	if err := c.records.TransitionDocument(ctx, documentID, models.StatusDraft, models.StatusSent); err != nil {
		return nil, err
	}
	if err := c.records.AppendAudit(ctx, &models.AuditEvent{
		DocumentID: documentID,
		Action:     models.ActionSent,
		Timestamp:  c.now(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		slog.Error("Failed to append SENT audit event", "documentId", documentID, "error", err)
	}

	signers, err := c.records.SignersByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	links := make([]models.SigningLink, 0, len(signers))
	for _, s := range signers {
		links = append(links, models.SigningLink{
			Email: s.Email,
			Token: s.Token,
			URL:   fmt.Sprintf("%s/?signing_token=%s", c.config.SigningBaseURL, s.Token),
		})
	}

	doc.Status = models.StatusSent
	if err := c.notifier.DocumentSent(ctx, doc, links); err != nil {
		slog.Error("Delivery hand-off for SENT failed", "documentId", documentID, "error", err)
	}
	slog.Info("Document sent.", "documentId", documentID, "signers", len(links))
	return links, nil
}

// ResolveSignerView returns the signing session for a capability token: a
// document summary, the signer, and the fields assigned to them. It is
// read-only and valid in any document state.
func (c *Coordinator) ResolveSignerView(ctx context.Context, token string) (models.SignerView, error) {
	signer, err := c.records.SignerByToken(ctx, token)
	if err != nil {
		return models.SignerView{}, err
	}
	doc, err := c.records.Document(ctx, signer.DocumentID)
	if err != nil {
		return models.SignerView{}, err
	}
	fields, err := c.records.FieldsBySigner(ctx, doc.ID, signer.ID)
	if err != nil {
		return models.SignerView{}, err
	}
	return models.SignerView{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
		SignerName: signer.Name,
		HasSigned:  signer.HasSigned,
		Fields:     fields,
	}, nil
}

// CheckCompletion re-runs the completion check for a document. It is
// idempotent given the underlying state: useful to retry a finalization that
// failed on a store error after all signers had already signed.
func (c *Coordinator) CheckCompletion(ctx context.Context, documentID string) (bool, error) {
	return c.finalizeIfComplete(ctx, documentID)
}

// finalizeIfComplete re-reads all signers and, when every one has signed,
// runs the finalize sequence: composite, persist, transition, audit. The
// sequence runs at most once per document; a concurrent caller that loses the
// status CAS observes Completed and backs off without re-compositing.
func (c *Coordinator) finalizeIfComplete(ctx context.Context, documentID string) (bool, error) {
	lock := c.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := c.records.Document(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc.Status == models.StatusCompleted {
		return false, nil
	}

	signers, err := c.records.SignersByDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	if len(signers) == 0 {
		return false, nil
	}
	for _, s := range signers {
		if !s.HasSigned {
			return false, nil
		}
	}

	logCtx := slog.With("documentId", documentID)
	logCtx.Info("All signers done, finalizing.", "signers", len(signers))

	placements, err := c.assemblePlacements(ctx, doc, signers)
	if err != nil {
		return false, err
	}
	original, err := c.blobs.Get(ctx, doc.FileKey)
	if err != nil {
		return false, fmt.Errorf("failed to load original document: %w", err)
	}
	finalized, err := compositor.Composite(original, placements)
	if err != nil {
		return false, fmt.Errorf("failed to composite document: %w", err)
	}

	// Persist before the status transition: Completed must never be observable
	// without durable finalized bytes. The finalized artifact is written
	// if-absent and never overwritten.
	if err := c.blobs.PutIfAbsent(ctx, blob.FinalizedKey(documentID), finalized); err != nil {
		return false, fmt.Errorf("failed to persist finalized document: %w", err)
	}

	if err := c.records.TransitionDocument(ctx, documentID, models.StatusSent, models.StatusCompleted); err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			// A concurrent finalizer won the transition.
			logCtx.Info("Document already completed by a concurrent caller.")
			return false, nil
		}
		return false, err
	}
	if err := c.records.AppendAudit(ctx, &models.AuditEvent{
		DocumentID: documentID,
		Action:     models.ActionCompleted,
		Timestamp:  c.now(),
		IPAddress:  models.SystemMeta().IPAddress,
		UserAgent:  models.SystemMeta().UserAgent,
	}); err != nil {
		logCtx.Error("Failed to append COMPLETED audit event", "error", err)
	}

	doc.Status = models.StatusCompleted
	if err := c.notifier.DocumentCompleted(ctx, doc); err != nil {
		logCtx.Error("Delivery hand-off for COMPLETED failed", "error", err)
	}
	logCtx.Info("Document finalized.", "placements", len(placements))
	return true, nil
}

// assemblePlacements joins each field with its signer's stored signature
// bytes, name and signing time. Missing or never-stored artifacts yield a
// text-only placement. The result is ordered deterministically.
func (c *Coordinator) assemblePlacements(ctx context.Context, doc models.Document, signers []models.Signer) ([]compositor.Placement, error) {
	fields, err := c.records.FieldsByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	images := make([][]byte, len(signers))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchLimit)
	for i, s := range signers {
		eg.Go(func() error {
			data, err := c.blobs.Get(gctx, blob.SignatureKey(doc.ID, s.ID, s.Token))
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil
				}
				return fmt.Errorf("signer %s artifact: %w", s.ID, err)
			}
			images[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	signerIdx := make(map[string]int, len(signers))
	for i, s := range signers {
		signerIdx[s.ID] = i
	}

	var placements []compositor.Placement
	for _, f := range fields {
		i, ok := signerIdx[f.SignerID]
		if !ok {
			continue
		}
		s := signers[i]
		var img []byte
		if f.Type == models.FieldSignature {
			img = images[i]
		}
		placements = append(placements, compositor.Placement{
			PageNumber:  f.PageNumber,
			X:           f.X,
			Y:           f.Y,
			Image:       img,
			SignerName:  s.Name,
			IncludeName: f.IncludeName,
			IncludeDate: f.IncludeDate,
			SignedAt:    models.SignedAtDisplay(s.SignedAt),
		})
	}

	// Store iteration order is unspecified; fix an order so repeated
	// finalizations of identical state composite identically.
	sort.Slice(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.SignerName < b.SignerName
	})
	return placements, nil
}

func (c *Coordinator) docLock(documentID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[documentID] = lock
	}
	return lock
}
