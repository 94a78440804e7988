package models

import "errors"

// Domain sentinel errors. Callers classify failures with errors.Is; the HTTP
// layer maps them to status codes.
var (
	// ErrNotFound reports an unknown document, signer, token or artifact key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySigned reports a duplicate submission for a signer whose
	// has-signed flag is already set. The first submission's artifact and
	// timestamps are left untouched.
	ErrAlreadySigned = errors.New("already signed")

	// ErrInvalidState reports an operation attempted outside its allowed
	// lifecycle phase, e.g. sending a non-draft document.
	ErrInvalidState = errors.New("invalid document state")
)
