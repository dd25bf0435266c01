package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jacentio/docrepo/store"
)

// Save writes every tracked document that changed since it was loaded, or
// that was never saved, in registration order. Unchanged documents cause no
// store traffic.
//
// Each written document is stamped with the current time. New documents are
// inserted; saved ones are replaced by identity, which re-creates documents
// deleted by another writer. The first failure stops the pass and is returned
// as a *SaveError; documents written before it stay written.
//
// Save is a no-op on read-only repositories.
func (r *Repository[T, P]) Save(ctx context.Context) error {
	if r.config.ReadOnly {
		return nil
	}
	docs := r.tracker.list()
	if len(docs) == 0 {
		return nil
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	var written int
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			r.config.Observer.ObserveSave(coll.Name(), written, time.Since(start), err)
			return err
		}
		if !r.tracker.changed(doc) {
			continue
		}
		if err := r.persist(ctx, coll, doc); err != nil {
			r.config.Observer.ObserveSave(coll.Name(), written, time.Since(start), err)
			r.logger.Error("save failed",
				"id", doc.GetID(),
				"database", r.DatabaseName(),
				"collection", coll.Name(),
				"written", written,
				"error", err,
			)
			return err
		}
		written++
	}

	r.config.Observer.ObserveSave(coll.Name(), written, time.Since(start), nil)
	r.logger.Debug("save completed",
		"collection", coll.Name(),
		"tracked", len(docs),
		"written", written,
	)
	return nil
}

// persist writes one document and refreshes its snapshot.
func (r *Repository[T, P]) persist(ctx context.Context, coll store.Collection, doc P) error {
	id := doc.GetID()
	isNew := r.IsNew(doc)

	// The stamp doubles as the new-to-existing transition for IsNew, so a
	// failed write puts the previous date back.
	var previous time.Time
	if d := doc.GetModifyDate(); d != nil {
		previous = *d
	}
	doc.SetModifyDate(r.now())

	var err error
	if isNew {
		err = coll.InsertOne(ctx, id, doc)
		if errors.Is(err, store.ErrAlreadyExists) {
			// Identity taken by another writer: replace rather than duplicate.
			r.logger.Debug("insert collided, replacing", "id", id)
			err = coll.ReplaceOne(ctx, id, doc)
		}
	} else {
		err = coll.ReplaceOne(ctx, id, doc)
	}
	r.config.Observer.ObserveWrite(coll.Name(), isNew, err)
	if err != nil {
		doc.SetModifyDate(previous)
		return &SaveError{ID: id, Insert: isNew, Err: err}
	}

	if err := r.tracker.capture(doc); err != nil {
		return &SaveError{ID: id, Insert: isNew, Err: err}
	}
	return nil
}

// now returns the save timestamp in UTC at millisecond precision, the finest
// resolution every backend round-trips.
func (r *Repository[T, P]) now() time.Time {
	return r.config.Now().UTC().Truncate(time.Millisecond)
}
