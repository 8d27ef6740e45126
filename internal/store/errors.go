package store

import "errors"

var (
	ErrListNotFound     = errors.New("waiting list not found")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrListExists       = errors.New("waiting list already exists for date")
	ErrInvalidStatus    = errors.New("invalid entry status")
	ErrOrderingMismatch = errors.New("ordering does not match the list's entries")
)
