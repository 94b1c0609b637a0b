package shared

import "errors"

var (
	// ErrUnknownAccount indicates a journal line referenced an account code
	// with no active account for the tenant. Posting aborts entirely; lines
	// are never silently dropped.
	ErrUnknownAccount = errors.New("accounting: unknown account code")
	// ErrUnbalanced indicates sum of debits != sum of credits.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrDuplicateRefNo indicates the tenant already has a journal with this ref_no.
	ErrDuplicateRefNo = errors.New("accounting: duplicate reference number")
	// ErrJournalNotFound indicates a missing journal.
	ErrJournalNotFound = errors.New("accounting: journal not found")
	// ErrInvalidStatus indicates a forbidden lifecycle transition.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrJournalImmutable indicates an attempt to mutate a posted journal.
	// Corrections are new reversing journals, never in-place edits.
	ErrJournalImmutable = errors.New("accounting: posted journal is immutable")
)
