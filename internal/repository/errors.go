package repository

import "errors"

// Slot store errors
var (
	// ErrNotFound is returned when a slot is absent or expired
	ErrNotFound = errors.New("slot not found")

	// ErrEmptyKey is returned when a slot name is blank
	ErrEmptyKey = errors.New("empty storage key")
)
