package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillsign/quillsign/internal/models"
)

func TestTransitionDocument(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		current models.DocumentStatus
		from    models.DocumentStatus
		to      models.DocumentStatus
		wantErr error
	}{
		{"draft to sent", models.StatusDraft, models.StatusDraft, models.StatusSent, nil},
		{"sent to completed", models.StatusSent, models.StatusSent, models.StatusCompleted, nil},
		{"sent document cannot be re-sent", models.StatusSent, models.StatusDraft, models.StatusSent, models.ErrInvalidState},
		{"completed is terminal", models.StatusCompleted, models.StatusSent, models.StatusCompleted, models.ErrInvalidState},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemory()
			doc := models.Document{ID: "d1", OwnerID: "o1", Status: tc.current}
			if err := s.CreateDocument(ctx, &doc); err != nil {
				t.Fatalf("create: %v", err)
			}
			err := s.TransitionDocument(ctx, "d1", tc.from, tc.to)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				got, _ := s.Document(ctx, "d1")
				if got.Status != tc.current {
					t.Errorf("status changed to %s on failed transition", got.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			got, _ := s.Document(ctx, "d1")
			if got.Status != tc.to {
				t.Errorf("status = %s, want %s", got.Status, tc.to)
			}
		})
	}
}

func TestTransitionDocumentUnknown(t *testing.T) {
	s := NewMemory()
	err := s.TransitionDocument(context.Background(), "ghost", models.StatusDraft, models.StatusSent)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkSignedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	signer := models.Signer{ID: "s1", DocumentID: "d1", Token: "t1"}
	if err := s.CreateSigner(ctx, &signer); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	if err := s.MarkSigned(ctx, "s1", first); err != nil {
		t.Fatalf("mark signed: %v", err)
	}
	err := s.MarkSigned(ctx, "s1", first.Add(time.Hour))
	if !errors.Is(err, models.ErrAlreadySigned) {
		t.Fatalf("err = %v, want ErrAlreadySigned", err)
	}

	got, err := s.SignerByToken(ctx, "t1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if !got.HasSigned || got.SignedAt == nil || !got.SignedAt.Equal(first) {
		t.Error("second mark mutated the original signed state")
	}
}

func TestUpsertFieldReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	f1 := models.Field{DocumentID: "d1", SignerID: "s1", PageNumber: 1, X: 100, Y: 200, Type: models.FieldSignature}
	if err := s.UpsertField(ctx, &f1); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	f2 := models.Field{DocumentID: "d1", SignerID: "s1", PageNumber: 2, X: 300, Y: 400, Type: models.FieldDate}
	if err := s.UpsertField(ctx, &f2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if f2.ID != f1.ID {
		t.Errorf("replacement got a new ID %s, want %s", f2.ID, f1.ID)
	}
	fields, err := s.FieldsBySigner(ctx, "d1", "s1")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("fields = %d, want exactly 1 per (document, signer)", len(fields))
	}
	if fields[0].PageNumber != 2 || fields[0].X != 300 || fields[0].Type != models.FieldDate {
		t.Error("latest field values were not retained")
	}

	// A different signer on the same document gets their own field.
	f3 := models.Field{DocumentID: "d1", SignerID: "s2", PageNumber: 1, X: 50, Y: 60, Type: models.FieldSignature}
	if err := s.UpsertField(ctx, &f3); err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	all, _ := s.FieldsByDocument(ctx, "d1")
	if len(all) != 2 {
		t.Errorf("document fields = %d, want 2", len(all))
	}
}

func TestSignerLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := models.Signer{DocumentID: "d1", Email: "a@example.test", Token: "ta"}
	b := models.Signer{DocumentID: "d1", Email: "b@example.test", Token: "tb"}
	other := models.Signer{DocumentID: "d2", Email: "a@example.test", Token: "tc"}
	for _, signer := range []*models.Signer{&a, &b, &other} {
		if err := s.CreateSigner(ctx, signer); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.SignerByEmail(ctx, "d1", "a@example.test")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if got.ID != a.ID {
		t.Error("SignerByEmail crossed document boundaries")
	}

	if _, err := s.SignerByToken(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	signers, err := s.SignersByDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("by document: %v", err)
	}
	if len(signers) != 2 {
		t.Errorf("signers = %d, want 2", len(signers))
	}
}
