package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrListenerStopped is returned when starting a listener that was stopped.
	ErrListenerStopped = errors.New("docrepo: listener stopped")

	// ErrQueueFull reports a delivery dropped because a subscription's queue was full.
	ErrQueueFull = errors.New("docrepo: subscription queue full")
)

// HandlerError reports a failed delivery to one subscription.
type HandlerError struct {
	// Subscription identifies the subscription within its listener.
	Subscription uint64

	// DocumentID is the identity of the changed document.
	DocumentID string

	// Err is the handler's error, or the recovered panic.
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscription %d: document %s: %v", e.Subscription, e.DocumentID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
