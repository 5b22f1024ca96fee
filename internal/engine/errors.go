package engine

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidTransition marks a fact that would move an item out of a
	// terminal state. The item is left unchanged; callers treat this as an
	// expected no-op outcome, not a fault.
	ErrInvalidTransition = eris.New("engine: invalid transition")

	// ErrRepositoryFailure marks a storage boundary failure. The operation
	// is aborted with no partial writes and no notifications.
	ErrRepositoryFailure = eris.New("engine: repository failure")

	// ErrUnknownContractor is returned when a fact references a contractor
	// the store has never seen.
	ErrUnknownContractor = eris.New("engine: unknown contractor")

	// ErrUnknownItemType is returned when a fact names a step, task, or
	// document type outside the active policy.
	ErrUnknownItemType = eris.New("engine: item type not in policy")
)

// repoFail tags a storage error so callers can match it with errors.Is while
// keeping the original chain.
func repoFail(err error, op string) error {
	return eris.Wrapf(errors.Join(ErrRepositoryFailure, err), "engine: %s", op)
}
