// Package apperrors defines sentinel errors shared across the engine.
package apperrors

import "errors"

var (
	// ErrNotReady indicates the schema service has not published a card yet.
	ErrNotReady = errors.New("schema service not ready")

	// ErrNoCard indicates no schema card is installed.
	ErrNoCard = errors.New("no schema card available")

	// ErrInvalidTableKey indicates a table key that does not resolve in the card.
	ErrInvalidTableKey = errors.New("invalid table key")

	// ErrUnknownDialect indicates a dialect name outside the supported set.
	ErrUnknownDialect = errors.New("unknown dialect")

	// ErrReflection indicates that zero tables could be reflected.
	ErrReflection = errors.New("reflection produced no tables")

	// ErrNonSelect indicates a statement whose root is not a SELECT.
	ErrNonSelect = errors.New("statement is not a SELECT")

	// ErrMultipleStatements indicates more than one statement in a single input.
	ErrMultipleStatements = errors.New("multiple statements not allowed")

	// ErrEmbeddingsDisabled indicates the encoder capability is unavailable.
	ErrEmbeddingsDisabled = errors.New("embeddings disabled")

	// ErrStopped indicates the coordinator has been shut down.
	ErrStopped = errors.New("service stopped")
)
