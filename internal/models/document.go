package models

import "time"

// DocumentStatus is the lifecycle phase of a document. Transitions are
// monotonic: Draft -> Sent -> Completed, never backward.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusSent      DocumentStatus = "SENT"
	StatusCompleted DocumentStatus = "COMPLETED"
)

// FieldType selects what a field renders during finalization.
type FieldType string

const (
	FieldSignature FieldType = "SIGNATURE"
	FieldDate      FieldType = "DATE"
)

// AuditAction tags an audit event with the lifecycle transition it records.
type AuditAction string

const (
	ActionSent      AuditAction = "SENT"
	ActionSigned    AuditAction = "SIGNED"
	ActionCompleted AuditAction = "COMPLETED"
)

// Document is the master record for one uploaded PDF awaiting signatures.
type Document struct {
	ID        string         `firestore:"-" json:"id"`
	OwnerID   string         `firestore:"ownerId" json:"ownerId"`
	Filename  string         `firestore:"filename" json:"filename"`
	FileKey   string         `firestore:"fileKey" json:"-"`
	Status    DocumentStatus `firestore:"status" json:"status"`
	CreatedAt time.Time      `firestore:"createdAt" json:"createdAt"`
}

// Signer is one required party for a document. Token is a bearer capability:
// possession authorizes viewing and signing, there is no separate login.
type Signer struct {
	ID         string     `firestore:"-" json:"id"`
	DocumentID string     `firestore:"documentId" json:"documentId"`
	Email      string     `firestore:"email" json:"email"`
	Name       string     `firestore:"name" json:"name"`
	Token      string     `firestore:"token" json:"token"`
	HasSigned  bool       `firestore:"hasSigned" json:"hasSigned"`
	SignedAt   *time.Time `firestore:"signedAt" json:"signedAt,omitempty"`
}

// Field is a placement instruction bound to one signer on one document.
// Coordinates are in the page's native space, origin bottom-left, in points.
// At most one field exists per (document, signer) pair.
type Field struct {
	ID          string    `firestore:"-" json:"id"`
	DocumentID  string    `firestore:"documentId" json:"documentId"`
	SignerID    string    `firestore:"signerId" json:"signerId"`
	PageNumber  int       `firestore:"pageNumber" json:"pageNumber"`
	X           float64   `firestore:"x" json:"x"`
	Y           float64   `firestore:"y" json:"y"`
	Type        FieldType `firestore:"type" json:"type"`
	IncludeName bool      `firestore:"includeName" json:"includeName"`
	IncludeDate bool      `firestore:"includeDate" json:"includeDate"`
}

// AuditEvent is an append-only record of a lifecycle transition.
type AuditEvent struct {
	ID         string      `firestore:"-" json:"id"`
	DocumentID string      `firestore:"documentId" json:"documentId"`
	Action     AuditAction `firestore:"action" json:"action"`
	Timestamp  time.Time   `firestore:"timestamp" json:"timestamp"`
	IPAddress  string      `firestore:"ipAddress" json:"ipAddress"`
	UserAgent  string      `firestore:"userAgent" json:"userAgent"`
}

// ClientMeta is best-effort request provenance recorded on audit events.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// SystemMeta is the provenance attached to events the coordinator emits on
// its own behalf rather than on behalf of a request.
func SystemMeta() ClientMeta {
	return ClientMeta{IPAddress: "System", UserAgent: "System"}
}

// DefaultField returns the auto-created placement a signer receives when
// added, so a minimally configured document still produces a valid composite.
// Top-right of page 1, sized for a letter-ish page.
func DefaultField(documentID, signerID string) Field {
	return Field{
		DocumentID:  documentID,
		SignerID:    signerID,
		PageNumber:  1,
		X:           450,
		Y:           750,
		Type:        FieldSignature,
		IncludeName: true,
		IncludeDate: true,
	}
}

// SignedAtDisplay formats a signing timestamp the way it is burned into the
// finalized document.
func SignedAtDisplay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
