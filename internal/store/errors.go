package store

import "errors"

var (
	// ErrInsufficientCredits is returned when a debit would take a user's
	// search credits below zero. The record is left unchanged.
	ErrInsufficientCredits = errors.New("insufficient search credits")

	// ErrMovieNotFound is returned when a movie code has no catalog entry.
	ErrMovieNotFound = errors.New("movie code not found")

	// ErrUnknownUser is returned when an operation targets a user the ledger
	// has never seen.
	ErrUnknownUser = errors.New("unknown user")
)
