package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/quillsign/quillsign/internal/models"
)

// Both store implementations must agree on Put/PutIfAbsent/Get/Delete
// semantics; the coordinator relies on PutIfAbsent keeping the first write.
func TestStoreSemantics(t *testing.T) {
	ctx := context.Background()

	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"fs": func(t *testing.T) Store {
			s, err := NewFS(t.TempDir())
			if err != nil {
				t.Fatalf("NewFS: %v", err)
			}
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			key := FinalizedKey("doc-1")

			if _, err := s.Get(ctx, key); !errors.Is(err, models.ErrNotFound) {
				t.Fatalf("missing key err = %v, want ErrNotFound", err)
			}

			if err := s.PutIfAbsent(ctx, key, []byte("first")); err != nil {
				t.Fatalf("first PutIfAbsent: %v", err)
			}
			if err := s.PutIfAbsent(ctx, key, []byte("second")); err != nil {
				t.Fatalf("second PutIfAbsent: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "first" {
				t.Errorf("stored = %q, PutIfAbsent must keep the first write", got)
			}

			if err := s.Put(ctx, key, []byte("overwritten")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, _ = s.Get(ctx, key)
			if string(got) != "overwritten" {
				t.Errorf("stored = %q after Put, want overwritten", got)
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("deleted key err = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Errorf("deleting a missing key should be a no-op, got %v", err)
			}
		})
	}
}

func TestFSNestedKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	key := SignatureKey("doc-1", "signer-1", "token-1")
	if err := s.Put(ctx, key, []byte("sig")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "sig" {
		t.Errorf("stored = %q, want sig", got)
	}
}
