package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCollection is returned by [Store.Subscribe] for an empty name.
	ErrEmptyCollection = errors.New("subscription: collection name must not be empty")

	// ErrInvalidHandle reports use of a handle after it was unsubscribed.
	// Accessors panic with an error wrapping it.
	ErrInvalidHandle = errors.New("subscription: handle used after unsubscribe")

	// ErrStoreClosed is returned by [Store.Subscribe] after [Store.Close].
	ErrStoreClosed = errors.New("subscription: store closed")
)

// TransportError means the remote listener for a collection failed to open
// or dropped. It never clears documents a handle already holds.
type TransportError struct {
	Collection string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("subscription %q: transport error: %v", e.Collection, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func invalidHandle(method string) error {
	return fmt.Errorf("%w: %s", ErrInvalidHandle, method)
}
