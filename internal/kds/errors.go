package kds

import "errors"

// Engine error kinds. Callers classify with errors.Is; the HTTP layer
// maps each kind to a status code so a display can tell "already bumped"
// apart from "backend unreachable".
var (
	// ErrInvalidTransition is an illegal state machine move, such as
	// bumping an already-completed ticket. Never retried.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidArgument is a malformed or unknown input value, such as
	// an inactive station or an unlisted priority. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means the ticket or order id is not in the live set.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means a persistence or transport port failed after
	// exhausting its retry budget.
	ErrUnavailable = errors.New("unavailable")
)

// Kind returns the sentinel an error wraps, or nil for unclassified errors.
func Kind(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return ErrInvalidTransition
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable
	default:
		return nil
	}
}
