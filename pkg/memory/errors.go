package memory

import "errors"

var (
	// ErrInsightNotFound indicates a confirmation request referenced an
	// insight id that is not in the store.
	ErrInsightNotFound = errors.New("memory: insight not found")
)
