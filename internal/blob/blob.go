// Package blob provides byte-addressable artifact storage for original
// documents, per-signer signature payloads and finalized output documents.
// Keys are opaque strings chosen by the callers via the scheme below.
package blob

import (
	"context"
	"fmt"
)

// Store is a pure key -> bytes mapping.
type Store interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// PutIfAbsent writes data under key only if no object exists there.
	// An already existing object is not an error; the stored bytes win.
	PutIfAbsent(ctx context.Context, key string, data []byte) error

	// Get returns the bytes stored under key, or models.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}

// The key scheme must remain stable: signature and finalized keys are derived
// deterministically so artifacts can be located again without an index.

// OriginalKey addresses an uploaded source document.
func OriginalKey(documentID, filename string) string {
	return fmt.Sprintf("uploads/%s_%s", documentID, filename)
}

// SignatureKey addresses one signer's submitted signature payload.
func SignatureKey(documentID, signerID, token string) string {
	return fmt.Sprintf("signatures/%s/%s/%s", documentID, signerID, token)
}

// FinalizedKey addresses the single finalized artifact of a document.
func FinalizedKey(documentID string) string {
	return fmt.Sprintf("finalized/%s.pdf", documentID)
}
