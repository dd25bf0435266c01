package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/docrepo/store"
)

// fallbackDatabase is used when neither the config nor the client names a database.
const fallbackDatabase = "docrepo"

// binding resolves the database and collection backing a repository. Names
// are computed lazily from their defaults; handles are created on first use
// and cached until the name they depend on changes.
type binding struct {
	client            store.Client
	defaultDatabase   string
	defaultCollection string
	logger            *slog.Logger

	// onRebind runs after a name change invalidated the cached handles.
	onRebind func()

	mu         sync.Mutex
	database   string
	collection string
	db         store.Database
	coll       store.Collection
}

func (b *binding) databaseName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.databaseNameLocked()
}

func (b *binding) databaseNameLocked() string {
	if b.database == "" {
		b.database = b.fallbackDatabaseName()
	}
	return b.database
}

// fallbackDatabaseName is the name an empty database name stands for.
func (b *binding) fallbackDatabaseName() string {
	name := b.defaultDatabase
	if name == "" && b.client != nil {
		name = b.client.DefaultDatabase()
	}
	if name == "" {
		name = fallbackDatabase
	}
	return name
}

func (b *binding) collectionName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.collectionNameLocked()
}

func (b *binding) collectionNameLocked() string {
	if b.collection == "" {
		b.collection = b.defaultCollection
	}
	return b.collection
}

// setDatabaseName rebinds to another database. Both cached handles are
// dropped. An empty name reverts to the default.
func (b *binding) setDatabaseName(name string) {
	b.mu.Lock()
	if name == "" {
		name = b.fallbackDatabaseName()
	}
	if name == b.databaseNameLocked() {
		b.mu.Unlock()
		return
	}
	old := b.database
	b.database = name
	b.db = nil
	b.coll = nil
	b.mu.Unlock()

	b.logger.Debug("database rebound", "from", old, "to", b.databaseName())
	if b.onRebind != nil {
		b.onRebind()
	}
}

// setCollectionName rebinds to another collection. The collection handle is
// dropped. An empty name reverts to the default.
func (b *binding) setCollectionName(name string) {
	b.mu.Lock()
	if name == "" {
		name = b.defaultCollection
	}
	if name == b.collectionNameLocked() {
		b.mu.Unlock()
		return
	}
	old := b.collection
	b.collection = name
	b.coll = nil
	b.mu.Unlock()

	b.logger.Debug("collection rebound", "from", old, "to", b.collectionName())
	if b.onRebind != nil {
		b.onRebind()
	}
}

// resolve returns the bound collection, creating handles as needed.
func (b *binding) resolve(ctx context.Context) (store.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.coll != nil {
		return b.coll, nil
	}
	if b.client == nil {
		return nil, fmt.Errorf("bind: %w: no client", store.ErrInvalidName)
	}
	if b.db == nil {
		db, err := b.client.Database(ctx, b.databaseNameLocked())
		if err != nil {
			return nil, fmt.Errorf("bind database: %w", err)
		}
		b.db = db
	}
	coll, err := b.db.Collection(ctx, b.collectionNameLocked())
	if err != nil {
		return nil, fmt.Errorf("bind collection: %w", err)
	}
	b.coll = coll

	b.logger.Debug("collection bound",
		"database", b.db.Name(),
		"collection", coll.Name(),
	)
	return coll, nil
}

// release drops the cached handles. The client is owned by the caller.
func (b *binding) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.db = nil
	b.coll = nil
}
