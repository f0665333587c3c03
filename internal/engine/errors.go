package engine

import "errors"

// Error taxonomy. Recoverable conditions are absorbed with a documented
// fallback and flagged on the response; only structural content errors and
// storage failures reach the caller.
var (
	// ErrInsufficientDiagnosticData: fewer diagnostic answers than the
	// configured minimum. Callers fall back to a neutral profile.
	ErrInsufficientDiagnosticData = errors.New("insufficient diagnostic data")

	// ErrProfileNotFound: no profile stored for the student yet.
	ErrProfileNotFound = errors.New("student profile not found")

	// ErrPathNotFound: no path assignment stored for the student yet.
	ErrPathNotFound = errors.New("path assignment not found")

	// ErrScoringUnavailable: the risk scoring model could not be reached.
	ErrScoringUnavailable = errors.New("scoring model unavailable")

	// ErrScoringTimeout: the risk scoring model did not answer in time.
	ErrScoringTimeout = errors.New("scoring model timed out")

	// ErrDuplicateEvent: the event id or sequence number was already applied.
	ErrDuplicateEvent = errors.New("duplicate performance event")

	// ErrInvalidEvent: a performance event missing required identifiers.
	ErrInvalidEvent = errors.New("invalid performance event")

	// ErrUnknownNode: an event referenced a node the course does not contain.
	ErrUnknownNode = errors.New("unknown content node")

	// ErrStaleGeneration: a path version at or below the stored latest was
	// written concurrently. Retried once against the latest version.
	ErrStaleGeneration = errors.New("stale path generation version")
)
