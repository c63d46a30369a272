package claims

import (
	"errors"
	"fmt"
)

// The closed error taxonomy callers receive from the engine. Storage-layer
// failures are never surfaced raw; they arrive wrapped in *PersistenceError.
var (
	// ErrClaimNotFound: the referenced claim does not exist.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrClaimFrozen: mutation attempted against a non-mutable claim.
	// Retrying does not change the outcome.
	ErrClaimFrozen = errors.New("claim is no longer mutable")
	// ErrAlreadyFrozen: a concurrent freeze lost the race, or the claim was
	// frozen earlier. Distinct from ErrClaimFrozen so callers can tell
	// "someone else just finished this" apart from ordinary mutation rejects.
	ErrAlreadyFrozen = errors.New("claim already frozen")
	// ErrEvidenceNotFound: referenced evidence artifact does not exist.
	ErrEvidenceNotFound = errors.New("evidence not found")
	// ErrEvidenceNotFrozen: referenced evidence is not yet immutable.
	// Recoverable: freeze the evidence first, then retry.
	ErrEvidenceNotFrozen = errors.New("evidence not frozen")
)

// PersistenceError wraps a storage-layer failure. It is always retryable at
// the caller's discretion.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// WrapPersistence wraps err as a PersistenceError unless it already belongs
// to the engine taxonomy.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClaimNotFound) || errors.Is(err, ErrClaimFrozen) ||
		errors.Is(err, ErrAlreadyFrozen) || errors.Is(err, ErrEvidenceNotFound) ||
		errors.Is(err, ErrEvidenceNotFrozen) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether err is a storage failure the caller may retry.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
