package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport reports that the backend could not be reached or failed.
	// Callers may retry.
	ErrTransport = errors.New("transport failure")

	// ErrNotFound reports that the requested identifier does not exist
	// upstream. It is terminal for the call that produced it.
	ErrNotFound = errors.New("not found")

	// ErrSessionEnded is returned by a fetch that completed after the session
	// that started it was torn down.
	ErrSessionEnded = errors.New("session ended")
)

// Transport wraps err as a transport failure.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// NotFound builds a not found error for id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

// classify folds any gateway error into the cache error taxonomy.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	// Cancellation and deadlines surface as transport failures too.
	return Transport(err)
}
