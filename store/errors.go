package store

import "errors"

var (
	// ErrNotFound is returned when no document matches an identity or filter.
	ErrNotFound = errors.New("docrepo: document not found")

	// ErrAlreadyExists is returned when inserting a document whose identity is already stored.
	ErrAlreadyExists = errors.New("docrepo: document already exists")

	// ErrNotUnique is returned when a single-document lookup matches more than one document.
	ErrNotUnique = errors.New("docrepo: more than one document matches")

	// ErrInvalidName is returned when a database or collection name cannot be bound.
	ErrInvalidName = errors.New("docrepo: invalid database or collection name")

	// ErrInvalidFilter is returned when a filter or sort cannot be translated by a backend.
	ErrInvalidFilter = errors.New("docrepo: invalid filter")

	// ErrWatchUnsupported is returned when a backend or collection cannot produce a change stream.
	ErrWatchUnsupported = errors.New("docrepo: change streams not supported")

	// ErrStreamClosed is returned by ChangeStream.Next after Close.
	ErrStreamClosed = errors.New("docrepo: change stream closed")
)
