package stream

import (
	"log/slog"
	"time"

	"github.com/jacentio/docrepo/store"
)

// Config holds configuration for listeners.
type Config struct {
	// Logger receives listener errors and lifecycle changes.
	// Default: slog.Default()
	Logger *slog.Logger

	// QueueSize is the per-worker delivery buffer of each subscription.
	// Deliveries beyond it are dropped and reported as ErrQueueFull.
	// Default: 256
	QueueSize int

	// Workers is the number of concurrent deliveries per subscription.
	// Changes to the same document are always delivered in order.
	// Default: 1
	Workers int

	// ErrorBuffer is the capacity of the Errors channel. Errors beyond it
	// are logged only.
	// Default: 64
	ErrorBuffer int

	// RetryInitial is the backoff slot after a failed watch.
	// Default: 100ms
	RetryInitial time.Duration

	// RetryMax caps the backoff between watch attempts.
	// Default: 30s
	RetryMax time.Duration

	// Observer receives delivery and reconnect counts.
	// Default: none
	Observer Observer
}

// Observer is notified of listener activity.
type Observer interface {
	// ObserveEvent reports a change event accepted for delivery.
	ObserveEvent(collection string, op store.Operation)

	// ObserveDelivery reports one handler invocation.
	ObserveDelivery(collection string, err error)

	// ObserveReconnect reports a watch re-established after a failure.
	ObserveReconnect(collection string)
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(string, store.Operation) {}
func (nopObserver) ObserveDelivery(string, error)        {}
func (nopObserver) ObserveReconnect(string)              {}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:       slog.Default(),
		QueueSize:    256,
		Workers:      1,
		ErrorBuffer:  64,
		RetryInitial: 100 * time.Millisecond,
		RetryMax:     30 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.ErrorBuffer < 1 {
		c.ErrorBuffer = 64
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 100 * time.Millisecond
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = 30 * time.Second
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
}
