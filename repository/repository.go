package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/jacentio/docrepo/store"
)

// Repository is a unit of work over one collection. It keeps an identity map
// of every document it created or loaded, detects changes by comparing each
// document with the state it was loaded in, and writes only changed or new
// documents on Save.
//
// A Repository is owned by a single logical unit of work. Map mutations are
// locked, but Save is not: concurrent Save calls on one instance must be
// serialized by the caller.
type Repository[T any, P DocumentOf[T]] struct {
	config  Config
	logger  *slog.Logger
	binding *binding
	tracker *tracker[P]
	fields  fieldSet
	init    func(P)
}

// New creates a Repository for documents of type T stored through client.
//
//	members := repository.New[Member](client, repository.DefaultConfig())
func New[T any, P DocumentOf[T]](client store.Client, config Config) *Repository[T, P] {
	config.validate()

	typ := reflect.TypeFor[T]()
	r := &Repository[T, P]{
		config:  config,
		logger:  config.Logger,
		tracker: newTracker[P](),
		fields:  fieldsOf(typ),
	}
	r.binding = &binding{
		client:            client,
		defaultDatabase:   config.DatabaseName,
		defaultCollection: defaultCollectionName(typ, config.CollectionName),
		logger:            config.Logger,
		onRebind:          r.tracker.clearSnapshots,
	}
	return r
}

func defaultCollectionName(typ reflect.Type, configured string) string {
	if configured != "" {
		return configured
	}
	if typ.Name() != "" {
		return typ.Name()
	}
	return "documents"
}

// OnCreate sets a hook that initializes documents returned by CreateNew.
func (r *Repository[T, P]) OnCreate(fn func(P)) {
	r.init = fn
}

// ReadOnly reports whether mutating operations are disabled.
func (r *Repository[T, P]) ReadOnly() bool {
	return r.config.ReadOnly
}

// DatabaseName returns the effective database name.
func (r *Repository[T, P]) DatabaseName() string {
	return r.binding.databaseName()
}

// SetDatabaseName rebinds the repository to another database. When the name
// changes, cached handles are dropped and every dirty-check snapshot is
// cleared, so the next Save writes all tracked documents to the new target.
func (r *Repository[T, P]) SetDatabaseName(name string) {
	r.binding.setDatabaseName(name)
}

// CollectionName returns the effective collection name.
func (r *Repository[T, P]) CollectionName() string {
	return r.binding.collectionName()
}

// SetCollectionName rebinds the repository to another collection with the
// same invalidation as SetDatabaseName.
func (r *Repository[T, P]) SetCollectionName(name string) {
	r.binding.setCollectionName(name)
}

// Collection returns the bound store collection, resolving it on first use.
func (r *Repository[T, P]) Collection(ctx context.Context) (store.Collection, error) {
	return r.binding.resolve(ctx)
}

// CreateNew returns a new document with a fresh identity and no modification
// date. The document is tracked for the next Save unless the repository is
// read-only.
func (r *Repository[T, P]) CreateNew() P {
	doc := P(new(T))
	doc.SetID(r.config.NewID())
	if r.init != nil {
		r.init(doc)
	}
	r.register(doc, false)
	return doc
}

// register is the read-only guarded entry to the identity map.
func (r *Repository[T, P]) register(doc P, existing bool) {
	if r.config.ReadOnly || doc == nil {
		return
	}
	r.tracker.register(doc, existing)
}

// Add tracks doc as a document to be written on the next Save.
func (r *Repository[T, P]) Add(doc P) {
	r.register(doc, false)
}

// AddAll tracks every document in docs.
func (r *Repository[T, P]) AddAll(docs []P) {
	for _, doc := range docs {
		r.register(doc, false)
	}
}

// Remove stops tracking doc. The stored document is not touched.
func (r *Repository[T, P]) Remove(doc P) {
	if r.config.ReadOnly || doc == nil {
		return
	}
	r.tracker.remove(doc.GetID())
}

// Tracked returns the tracked instance with the given identity.
func (r *Repository[T, P]) Tracked(id string) (P, bool) {
	return r.tracker.get(id)
}

// IsNew reports whether doc has never been saved.
func (r *Repository[T, P]) IsNew(doc P) bool {
	return doc != nil && doc.GetModifyDate() == nil
}

// HasChanges reports whether doc differs from the state it was loaded in.
// Documents without a baseline (created, added, or loaded before a rebind)
// always report true.
func (r *Repository[T, P]) HasChanges(doc P) bool {
	return doc != nil && r.tracker.changed(doc)
}

// Refresh would reload doc from the store in place. It is not supported.
func (r *Repository[T, P]) Refresh(context.Context, P) error {
	return fmt.Errorf("refresh: %w", ErrNotSupported)
}

// withDefaults applies the configured default filter and sort and rejects
// unknown fields.
func (r *Repository[T, P]) withDefaults(q store.Query) (store.Query, error) {
	if !r.config.DefaultFilter.IsEmpty() {
		q.Filter = q.Filter.And(r.config.DefaultFilter)
	}
	if len(q.Sort) == 0 && len(r.config.DefaultSort) > 0 {
		q.Sort = r.config.DefaultSort
	}
	if err := r.fields.check(q.Fields()...); err != nil {
		return q, err
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

func (r *Repository[T, P]) decode(rec store.Record) (P, error) {
	doc := P(new(T))
	if err := rec.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// GetByID loads the document with the given identity and tracks it.
// Missing documents return store.ErrNotFound.
func (r *Repository[T, P]) GetByID(ctx context.Context, id string) (P, error) {
	coll, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := coll.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := r.decode(rec)
	if err != nil {
		return nil, err
	}
	r.register(doc, true)
	return doc, nil
}

// GetSingle loads the only document matching f and tracks it. No match
// returns store.ErrNotFound; several matches return store.ErrNotUnique.
func (r *Repository[T, P]) GetSingle(ctx context.Context, f store.Filter) (P, error) {
	q, err := r.withDefaults(store.Query{Filter: f, Limit: 2})
	if err != nil {
		return nil, err
	}
	q.Sort = nil

	coll, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := coll.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
	default:
		return nil, store.ErrNotUnique
	}
	doc, err := r.decode(recs[0])
	if err != nil {
		return nil, err
	}
	r.register(doc, true)
	return doc, nil
}

// GetAll loads every document matching q and tracks them.
func (r *Repository[T, P]) GetAll(ctx context.Context, q store.Query) ([]P, error) {
	q, err := r.withDefaults(q)
	if err != nil {
		return nil, err
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := coll.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	docs := make([]P, 0, len(recs))
	for _, rec := range recs {
		doc, err := r.decode(rec)
		if err != nil {
			return nil, err
		}
		r.register(doc, true)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Page is one page of query results.
type Page[P any] struct {
	Items     []P
	Total     int64
	PageSize  int
	PageIndex int
}

// Pages returns the number of pages of PageSize needed for Total matches.
func (p Page[P]) Pages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// GetPage loads page pageIndex (zero based) of pageSize documents matching q,
// together with the total number of matches. q.Skip and q.Limit are ignored.
func (r *Repository[T, P]) GetPage(ctx context.Context, q store.Query, pageSize, pageIndex int) (Page[P], error) {
	if pageSize <= 0 || pageIndex < 0 {
		return Page[P]{}, fmt.Errorf("%w: page size %d, index %d", store.ErrInvalidFilter, pageSize, pageIndex)
	}
	total, err := r.Count(ctx, q.Filter)
	if err != nil {
		return Page[P]{}, err
	}
	q.Skip = int64(pageSize) * int64(pageIndex)
	q.Limit = int64(pageSize)
	items, err := r.GetAll(ctx, q)
	if err != nil {
		return Page[P]{}, err
	}
	return Page[P]{Items: items, Total: total, PageSize: pageSize, PageIndex: pageIndex}, nil
}

// Any reports whether a document matches f.
func (r *Repository[T, P]) Any(ctx context.Context, f store.Filter) (bool, error) {
	q, err := r.withDefaults(store.Query{Filter: f})
	if err != nil {
		return false, err
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return false, err
	}
	return coll.Exists(ctx, q.Filter)
}

// Count returns the number of documents matching f.
func (r *Repository[T, P]) Count(ctx context.Context, f store.Filter) (int64, error) {
	q, err := r.withDefaults(store.Query{Filter: f})
	if err != nil {
		return 0, err
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return 0, err
	}
	return coll.Count(ctx, q.Filter)
}

// Delete removes doc from the store immediately and stops tracking it.
func (r *Repository[T, P]) Delete(ctx context.Context, doc P) error {
	if r.config.ReadOnly || doc == nil {
		return nil
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return err
	}
	if err := coll.DeleteOne(ctx, doc.GetID()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", doc.GetID(), err)
	}
	r.tracker.remove(doc.GetID())
	return nil
}

// DeleteWhere removes every stored document matching f and reports how many
// were removed. Tracked instances are left in the identity map.
func (r *Repository[T, P]) DeleteWhere(ctx context.Context, f store.Filter) (int64, error) {
	if r.config.ReadOnly {
		return 0, nil
	}
	if err := r.fields.check(store.Query{Filter: f}.Fields()...); err != nil {
		return 0, err
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return 0, err
	}
	return coll.DeleteMany(ctx, f)
}

// Close empties the identity map and drops the cached handles. The client
// stays open; it belongs to the caller.
func (r *Repository[T, P]) Close() error {
	r.tracker.reset()
	r.binding.release()
	return nil
}
