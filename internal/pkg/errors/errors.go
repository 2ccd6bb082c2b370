package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTxRequired is returned by repo methods that only make sense inside a transaction.
	ErrTxRequired = errors.New("transaction required")
)
