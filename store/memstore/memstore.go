// Package memstore is an in-process document store.
//
// Documents are held as JSON and compared with the shared evaluation helpers
// in package store. Every collection can be watched; events are delivered in
// write order to each open change stream.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/jacentio/docrepo/store"
)

// Config holds configuration for the Client.
type Config struct {
	// DefaultDatabase is reported by Client.DefaultDatabase.
	// Default: "docrepo"
	DefaultDatabase string

	// StreamBuffer is the number of events buffered per change stream.
	// Events are dropped for streams whose buffer is full.
	// Default: 256
	StreamBuffer int
}

// DefaultConfig returns the in-memory defaults.
func DefaultConfig() Config {
	return Config{
		DefaultDatabase: "docrepo",
		StreamBuffer:    256,
	}
}

func (c *Config) validate() {
	if c.DefaultDatabase == "" {
		c.DefaultDatabase = "docrepo"
	}
	if c.StreamBuffer < 1 {
		c.StreamBuffer = 256
	}
}

// Client is an in-memory store.Client.
type Client struct {
	config Config

	mu        sync.Mutex
	databases map[string]*Database
}

// New creates an empty in-memory client.
func New(config Config) *Client {
	config.validate()
	return &Client{
		config:    config,
		databases: make(map[string]*Database),
	}
}

// DefaultDatabase implements store.Client.
func (c *Client) DefaultDatabase() string {
	return c.config.DefaultDatabase
}

// Database implements store.Client.
func (c *Client) Database(_ context.Context, name string) (store.Database, error) {
	if err := store.ValidateName("database", name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	db, ok := c.databases[name]
	if !ok {
		db = &Database{
			name:        name,
			client:      c,
			collections: make(map[string]*Collection),
		}
		c.databases[name] = db
	}
	return db, nil
}

// Close implements store.Client. Stored data is kept.
func (c *Client) Close(context.Context) error {
	return nil
}

// Database is an in-memory store.Database.
type Database struct {
	name   string
	client *Client

	mu          sync.Mutex
	collections map[string]*Collection
}

// Name implements store.Database.
func (d *Database) Name() string {
	return d.name
}

// Collection implements store.Database.
func (d *Database) Collection(_ context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName("collection", name); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[name]
	if !ok {
		coll = &Collection{
			name:    name,
			buffer:  d.client.config.StreamBuffer,
			docs:    make(map[string][]byte),
			streams: make(map[*changeStream]struct{}),
		}
		d.collections[name] = coll
	}
	return coll, nil
}

// record is a stored JSON document.
type record []byte

// Decode implements store.Record.
func (r record) Decode(v any) error {
	return json.Unmarshal(r, v)
}

// Collection is an in-memory store.Collection. It also implements store.Watcher.
type Collection struct {
	name   string
	buffer int

	mu      sync.RWMutex
	order   []string
	docs    map[string][]byte
	streams map[*changeStream]struct{}
}

var (
	_ store.Collection = (*Collection)(nil)
	_ store.Watcher    = (*Collection)(nil)
)

// Name implements store.Collection.
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

type decoded struct {
	id  string
	raw []byte
	doc map[string]any
}

// matching returns the documents matching f in insertion order. Callers hold c.mu.
func (c *Collection) matching(f store.Filter) ([]decoded, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []decoded
	for _, id := range c.order {
		raw := c.docs[id]
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		ok, err := store.Match(doc, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, decoded{id: id, raw: raw, doc: doc})
		}
	}
	return out, nil
}

// Find implements store.Collection.
func (c *Collection) Find(_ context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	found, err := c.matching(q.Filter)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	docs := make([]map[string]any, len(found))
	for i := range found {
		docs[i] = found[i].doc
	}
	idx := store.SortOrder(docs, q.Sort)

	start, end := store.Page(len(idx), q.Skip, q.Limit)
	out := make([]store.Record, 0, end-start)
	for _, i := range idx[start:end] {
		out = append(out, record(found[i].raw))
	}
	return out, nil
}

// FindOne implements store.Collection.
func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Record, error) {
	recs, err := c.Find(ctx, store.Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(_ context.Context, id string) (store.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record(raw), nil
}

// InsertOne implements store.Collection.
func (c *Collection) InsertOne(_ context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; ok {
		return store.ErrAlreadyExists
	}
	c.put(id, raw)
	c.publish(store.ChangeEvent{Operation: store.OperationInsert, DocumentID: id, Document: record(raw)})
	return nil
}

// ReplaceOne implements store.Collection.
func (c *Collection) ReplaceOne(_ context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	op := store.OperationReplace
	if _, ok := c.docs[id]; !ok {
		op = store.OperationInsert
	}
	c.put(id, raw)
	c.publish(store.ChangeEvent{Operation: op, DocumentID: id, Document: record(raw)})
	return nil
}

// put stores raw under id. Callers hold c.mu.
func (c *Collection) put(id string, raw []byte) {
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = raw
}

// remove deletes id. Callers hold c.mu.
func (c *Collection) remove(id string) bool {
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.publish(store.ChangeEvent{Operation: store.OperationDelete, DocumentID: id})
	return true
}

// DeleteOne implements store.Collection.
func (c *Collection) DeleteOne(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(id)
	return nil
}

// DeleteMany implements store.Collection.
func (c *Collection) DeleteMany(_ context.Context, f store.Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found, err := c.matching(f)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, d := range found {
		if c.remove(d.id) {
			n++
		}
	}
	return n, nil
}

// Count implements store.Collection.
func (c *Collection) Count(_ context.Context, f store.Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found, err := c.matching(f)
	if err != nil {
		return 0, err
	}
	return int64(len(found)), nil
}

// Exists implements store.Collection.
func (c *Collection) Exists(ctx context.Context, f store.Filter) (bool, error) {
	n, err := c.Count(ctx, f)
	return n > 0, err
}

// Watch implements store.Watcher.
func (c *Collection) Watch(_ context.Context, ops ...store.Operation) (store.ChangeStream, error) {
	s := &changeStream{
		coll:   c,
		ops:    ops,
		events: make(chan store.ChangeEvent, c.buffer),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.streams[s] = struct{}{}
	c.mu.Unlock()
	return s, nil
}

// publish fans ev out to open streams. Callers hold c.mu.
func (c *Collection) publish(ev store.ChangeEvent) {
	ev.Time = time.Now()
	for s := range c.streams {
		if !store.Wants(s.ops, ev.Operation) {
			continue
		}
		select {
		case s.events <- ev:
		default:
			// Slow consumer; drop rather than block writers.
		}
	}
}

type changeStream struct {
	coll   *Collection
	ops    []store.Operation
	events chan store.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

// Next implements store.ChangeStream.
func (s *changeStream) Next(ctx context.Context) (store.ChangeEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return store.ChangeEvent{}, store.ErrStreamClosed
	case <-ctx.Done():
		return store.ChangeEvent{}, ctx.Err()
	}
}

// Close implements store.ChangeStream.
func (s *changeStream) Close(context.Context) error {
	s.once.Do(func() {
		s.coll.mu.Lock()
		delete(s.coll.streams, s)
		s.coll.mu.Unlock()
		close(s.done)
	})
	return nil
}
