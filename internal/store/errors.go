package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUseAfterClose is returned by every operation on a closed store,
	// including a second Close.
	ErrUseAfterClose = errors.New("event store used after close")

	// ErrConnectionUnavailable is returned when a scoped host connection is
	// requested for an exclusive in-memory store.
	ErrConnectionUnavailable = errors.New("scoped connection unavailable for exclusive in-memory store")

	// ErrUnseeded is returned when randomness is requested before Seed.
	ErrUnseeded = errors.New("random source not seeded")
)

// OpenError reports that the backing database could not be opened or
// prepared.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open event store %q: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
