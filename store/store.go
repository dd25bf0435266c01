package store

import (
	"context"
	"time"
)

// IDField is the serialized name of the document identity.
// Backends with a native identity key (MongoDB's _id) translate it.
const IDField = "id"

// Client is a connection to a document store. Clients own connection pooling
// and are shared between repository instances.
type Client interface {
	// DefaultDatabase returns the database named by the connection target,
	// or an empty string when the target names none.
	DefaultDatabase() string

	// Database resolves a database handle. Invalid names fail with ErrInvalidName.
	Database(ctx context.Context, name string) (Database, error)

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}

// Database resolves collections within one database.
type Database interface {
	// Name returns the database name.
	Name() string

	// Collection resolves a collection handle. Invalid names fail with ErrInvalidName.
	Collection(ctx context.Context, name string) (Collection, error)
}

// Collection is the minimal capability a repository needs from a document collection.
// Documents passed to InsertOne and ReplaceOne are encoded with the backend's
// native codec.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Find returns the documents matching q in q's sort order.
	Find(ctx context.Context, q Query) ([]Record, error)

	// FindOne returns the first document matching f, or ErrNotFound.
	FindOne(ctx context.Context, f Filter) (Record, error)

	// FindByID returns the document with the given identity, or ErrNotFound.
	FindByID(ctx context.Context, id string) (Record, error)

	// InsertOne stores a new document, failing with ErrAlreadyExists if id is taken.
	InsertOne(ctx context.Context, id string, doc any) error

	// ReplaceOne replaces the document with the given identity, inserting it if absent.
	ReplaceOne(ctx context.Context, id string, doc any) error

	// DeleteOne removes the document with the given identity. Missing documents are not an error.
	DeleteOne(ctx context.Context, id string) error

	// DeleteMany removes every document matching f and reports how many were removed.
	DeleteMany(ctx context.Context, f Filter) (int64, error)

	// Count returns the number of documents matching f.
	Count(ctx context.Context, f Filter) (int64, error)

	// Exists reports whether any document matches f.
	Exists(ctx context.Context, f Filter) (bool, error)
}

// Watcher is implemented by collections that can stream changes.
type Watcher interface {
	// Watch opens a change stream delivering only the given operations.
	// An empty ops list delivers every operation.
	Watch(ctx context.Context, ops ...Operation) (ChangeStream, error)
}

// ChangeStream is a cursor over change events in store delivery order.
type ChangeStream interface {
	// Next blocks until the next event is available or ctx is done.
	Next(ctx context.Context) (ChangeEvent, error)

	// Close releases the cursor.
	Close(ctx context.Context) error
}

// Record is a stored document in the backend's native encoding.
type Record interface {
	// Decode unmarshals the record into v.
	Decode(v any) error
}

// Operation identifies the kind of write a change event reports.
type Operation string

const (
	OperationInsert  Operation = "insert"
	OperationUpdate  Operation = "update"
	OperationReplace Operation = "replace"
	OperationDelete  Operation = "delete"
)

// WriteOperations are the operations a subscription listener observes.
var WriteOperations = []Operation{OperationInsert, OperationUpdate, OperationReplace}

// ChangeEvent is one entry of a change stream.
type ChangeEvent struct {
	// Operation is the kind of write.
	Operation Operation

	// DocumentID is the identity of the changed document.
	DocumentID string

	// Document is the full document after the write. Nil for deletes.
	Document Record

	// Time is when the store recorded the change, if known.
	Time time.Time
}

// Wants reports whether op is included in ops. An empty ops list includes everything.
func Wants(ops []Operation, op Operation) bool {
	if len(ops) == 0 {
		return true
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
