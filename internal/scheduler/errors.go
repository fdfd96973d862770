package scheduler

import "errors"

var (
	ErrInvalidTransactionID = errors.New("transaction id must be a positive integer")
	ErrAlreadyFinished      = errors.New("transaction already finished, cannot cancel")
	ErrAlreadyCanceled      = errors.New("transaction already canceled")

	// ErrCanceled is the cause attached to a running transaction's context when Cancel aborts it.
	ErrCanceled = errors.New("transaction canceled")
)
