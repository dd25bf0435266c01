package repository_test

import (
	"context"
	"sync"

	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/memstore"
)

// StatusAvailable is the status CreateNew assigns through the OnCreate hook.
const StatusAvailable = 1

type Member struct {
	repository.Base `bson:",inline"`
	Title           string `json:"title" bson:"title"`
	UserName        string `json:"user_name" bson:"user_name"`
	Password        string `json:"password" bson:"password"`
	Status          int    `json:"status" bson:"status"`
	Email           string `json:"email" bson:"email"`
}

// countingClient wraps a client so tests can count writes per collection.
type countingClient struct {
	store.Client

	mu          sync.Mutex
	collections map[string]*countingCollection
	failOn      map[string]error
}

func newCountingClient() *countingClient {
	return &countingClient{
		Client:      memstore.New(memstore.DefaultConfig()),
		collections: make(map[string]*countingCollection),
		failOn:      make(map[string]error),
	}
}

func (c *countingClient) Database(ctx context.Context, name string) (store.Database, error) {
	db, err := c.Client.Database(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingDatabase{Database: db, client: c}, nil
}

// coll returns the counting wrapper for database/collection, if it was bound.
func (c *countingClient) coll(database, collection string) *countingCollection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collections[database+"/"+collection]
}

// fail makes writes of the given identity fail with err.
func (c *countingClient) fail(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOn[id] = err
}

func (c *countingClient) failure(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failOn[id]
}

type countingDatabase struct {
	store.Database
	client *countingClient
}

func (d *countingDatabase) Collection(ctx context.Context, name string) (store.Collection, error) {
	coll, err := d.Database.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	key := d.Name() + "/" + name

	d.client.mu.Lock()
	defer d.client.mu.Unlock()
	cc, ok := d.client.collections[key]
	if !ok {
		cc = &countingCollection{Collection: coll, client: d.client}
		d.client.collections[key] = cc
	}
	return cc, nil
}

type countingCollection struct {
	store.Collection
	client *countingClient

	mu       sync.Mutex
	inserts  int
	replaces int
	written  []string
}

func (c *countingCollection) InsertOne(ctx context.Context, id string, doc any) error {
	if err := c.client.failure(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.inserts++
	c.written = append(c.written, id)
	c.mu.Unlock()
	return c.Collection.InsertOne(ctx, id, doc)
}

func (c *countingCollection) ReplaceOne(ctx context.Context, id string, doc any) error {
	if err := c.client.failure(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.replaces++
	c.written = append(c.written, id)
	c.mu.Unlock()
	return c.Collection.ReplaceOne(ctx, id, doc)
}

func (c *countingCollection) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts + c.replaces
}

func (c *countingCollection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts, c.replaces = 0, 0
	c.written = nil
}

func newMembers(client store.Client, readOnly bool) *repository.Repository[Member, *Member] {
	cfg := repository.DefaultConfig()
	cfg.DatabaseName = "NheaTestDb"
	cfg.ReadOnly = readOnly
	members := repository.New[Member](client, cfg)
	members.OnCreate(func(m *Member) {
		m.Status = StatusAvailable
	})
	return members
}
