package replica

import "errors"

var (
	// ErrDuplicateID reports a constructor invoked with an already
	// registered object id.
	ErrDuplicateID = errors.New("duplicate object id")

	// ErrUnknownID reports an operation referencing an unregistered id.
	ErrUnknownID = errors.New("unknown object id")

	// ErrMultiWorld reports a World() call with more than one live world.
	ErrMultiWorld = errors.New("more than one world registered")

	// ErrNoWorld reports a World() call before any world exists.
	ErrNoWorld = errors.New("no world registered")
)
