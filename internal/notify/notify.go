// Package notify hands lifecycle transitions off for out-of-band delivery.
// Delivery itself (email, webhooks) is external; this package only fires the
// hand-off.
package notify

import (
	"context"

	"github.com/quillsign/quillsign/internal/models"
)

// Notifier receives lifecycle hand-offs. Implementations must be safe for
// concurrent use. Failures are logged by callers and never block the signing
// flow.
type Notifier interface {
	// DocumentSent fires after a document transitions to Sent, carrying the
	// signing links for delivery.
	DocumentSent(ctx context.Context, doc models.Document, links []models.SigningLink) error

	// DocumentCompleted fires after the finalized artifact is persisted and
	// the document is marked Completed.
	DocumentCompleted(ctx context.Context, doc models.Document) error
}

// Nop discards all hand-offs. Used in tests and local runs.
type Nop struct{}

func (Nop) DocumentSent(context.Context, models.Document, []models.SigningLink) error {
	return nil
}

func (Nop) DocumentCompleted(context.Context, models.Document) error {
	return nil
}
