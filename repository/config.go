package repository

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/docrepo/store"
)

// Config holds configuration for a Repository.
type Config struct {
	// DatabaseName overrides the client's default database.
	// Default: the client's DefaultDatabase, or "docrepo" when it names none.
	DatabaseName string

	// CollectionName overrides the collection derived from the document type.
	// Default: the document type name (e.g. "Member").
	CollectionName string

	// ReadOnly turns every mutating operation into a no-op.
	ReadOnly bool

	// DefaultFilter is combined with the filter of GetSingle, GetAll, GetPage,
	// Any and Count.
	DefaultFilter store.Filter

	// DefaultSort orders GetAll and GetPage results when the query has no sort.
	DefaultSort []store.Sort

	// Logger receives save failures and binding changes.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now stamps document modification dates.
	// Default: time.Now
	Now func() time.Time

	// NewID generates document identities.
	// Default: uuid.NewString
	NewID func() string

	// Observer receives write and save outcomes.
	// Default: none
	Observer Observer
}

// Observer is notified of store writes made by Save.
type Observer interface {
	// ObserveWrite reports one document write.
	ObserveWrite(collection string, insert bool, err error)

	// ObserveSave reports a completed or failed Save pass.
	ObserveSave(collection string, written int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveWrite(string, bool, error)             {}
func (nopObserver) ObserveSave(string, int, time.Duration, error) {}

// DefaultConfig returns a read-write configuration bound to the client defaults.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

// ReadOnlyConfig returns DefaultConfig with ReadOnly set.
func ReadOnlyConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadOnly = true
	return cfg
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
}
