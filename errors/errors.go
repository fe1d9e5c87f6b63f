package errors

import "fmt"

var (
	// Validation failures. Only empty content fails a send; malformed
	// cursors degrade to an unfiltered first page instead.
	ErrEmptyContent = fmt.Errorf("message content cannot be empty")

	// Unknown references.
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")

	// Credential failures. Surfaced to clients only as close codes or
	// HTTP statuses, never with detail about which check failed.
	ErrMissingCredential = fmt.Errorf("credential missing")
	ErrInvalidCredential = fmt.Errorf("credential invalid")
	ErrIdentityMismatch  = fmt.Errorf("credential does not match claimed identity")

	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyWordList = fmt.Errorf("no censored words have been found")

	// ErrSessionClosed reports a write to a live session that has already
	// been torn down or overflowed its send buffer.
	ErrSessionClosed = fmt.Errorf("session closed")
)
