// Package store defines the capability a repository needs from a document store.
//
// Backends live in sub-packages and implement [Client], [Database] and
// [Collection]:
//
//   - store/memstore - in-process, JSON encoded, with a change feed
//   - store/dynamo   - Amazon DynamoDB, change feed from DynamoDB Streams
//   - store/mongo    - MongoDB, change feed from change streams
//   - store/sqlite   - embedded SQLite, JSON documents, no change feed
//
// # Filters
//
// Queries are expressed with a small conjunctive filter model that every
// backend translates to its native query language:
//
//	f := store.Where(
//	    store.Eq("title", "Selected Member"),
//	    store.Gte("status", 1),
//	)
//	q := store.Query{Filter: f, Sort: []store.Sort{store.Desc("modify_date")}, Limit: 20}
//
// Field names are the serialized (json) names of document fields. Nested
// fields use dots. The identity field is [IDField].
//
// # Change Streams
//
// Collections that implement [Watcher] can stream insert, update and
// replace events. Delete events are filtered by the backend when not
// requested.
//
// # Errors
//
//   - [ErrNotFound] - no document matches
//   - [ErrAlreadyExists] - insert of an identity that is already stored
//   - [ErrNotUnique] - single lookup matched several documents
//   - [ErrInvalidName] - database or collection name cannot be bound
//   - [ErrInvalidFilter] - filter cannot be translated
//   - [ErrWatchUnsupported] - no change stream available
package store
