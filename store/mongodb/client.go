// Package mongodb stores documents in MongoDB.
//
// Documents are encoded with the driver's bson codec, so document types carry
// bson tags alongside their json tags. The identity field "id" maps to _id.
// Change streams require a replica set or sharded cluster; on a standalone
// server Watch fails with store.ErrWatchUnsupported.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/jacentio/docrepo/store"
)

// Config holds configuration for connecting to MongoDB.
type Config struct {
	// URI is the connection string.
	// Default: "mongodb://localhost:27017"
	URI string

	// DefaultDatabase overrides the database named in URI.
	// Default: "" (database from URI)
	DefaultDatabase string

	// ConnectTimeout bounds the initial connection and ping.
	// Default: 10s
	ConnectTimeout time.Duration

	// AppName is reported to the server for diagnostics.
	// Default: "docrepo"
	AppName string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		ConnectTimeout: 10 * time.Second,
		AppName:        "docrepo",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.AppName == "" {
		c.AppName = "docrepo"
	}
}

// Client is a MongoDB store.Client. It owns the driver's connection pool.
type Client struct {
	client          *mongo.Client
	defaultDatabase string
}

// Connect dials the server and verifies the connection.
func Connect(ctx context.Context, config Config) (*Client, error) {
	config.validate()

	cs, err := connstring.ParseAndValidate(config.URI)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb uri: %w", err)
	}
	database := config.DefaultDatabase
	if database == "" {
		database = cs.Database
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(config.URI).
		SetAppName(config.AppName).
		SetConnectTimeout(config.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewClient(client, database), nil
}

// NewClient wraps a connected driver client.
func NewClient(client *mongo.Client, defaultDatabase string) *Client {
	return &Client{client: client, defaultDatabase: defaultDatabase}
}

// DefaultDatabase implements store.Client.
func (c *Client) DefaultDatabase() string {
	return c.defaultDatabase
}

// Database implements store.Client.
func (c *Client) Database(_ context.Context, name string) (store.Database, error) {
	if err := validateDatabaseName(name); err != nil {
		return nil, err
	}
	return &Database{db: c.client.Database(name)}, nil
}

// Close implements store.Client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func validateDatabaseName(name string) error {
	if err := store.ValidateName("database", name); err != nil {
		return err
	}
	if strings.Contains(name, ".") || len(name) > 63 {
		return fmt.Errorf("%w: database %q", store.ErrInvalidName, name)
	}
	return nil
}

func validateCollectionName(name string) error {
	if err := store.ValidateName("collection", name); err != nil {
		return err
	}
	if strings.HasPrefix(name, "system.") {
		return fmt.Errorf("%w: collection %q is reserved", store.ErrInvalidName, name)
	}
	return nil
}

// Database is a MongoDB database.
type Database struct {
	db *mongo.Database
}

// Name implements store.Database.
func (d *Database) Name() string {
	return d.db.Name()
}

// Collection implements store.Database.
func (d *Database) Collection(_ context.Context, name string) (store.Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	return &Collection{coll: d.db.Collection(name)}, nil
}

// Record is a stored BSON document.
type Record bson.Raw

// Decode implements store.Record.
func (r Record) Decode(v any) error {
	return bson.Unmarshal(r, v)
}

// Collection is a MongoDB collection.
type Collection struct {
	coll *mongo.Collection
}

// Name implements store.Collection.
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Find implements store.Collection.
func (c *Collection) Find(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter, err := translateFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(translateSort(q.Sort))
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []store.Record
	for cursor.Next(ctx) {
		// Current is reused by the cursor.
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		out = append(out, Record(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Name(), err)
	}
	return out, nil
}

func (c *Collection) findOne(ctx context.Context, filter bson.D) (store.Record, error) {
	raw, err := c.coll.FindOne(ctx, filter).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", c.Name(), err)
	}
	return Record(raw), nil
}

// FindOne implements store.Collection.
func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	filter, err := translateFilter(f)
	if err != nil {
		return nil, err
	}
	return c.findOne(ctx, filter)
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(ctx context.Context, id string) (store.Record, error) {
	return c.findOne(ctx, byID(id))
}

// InsertOne implements store.Collection.
func (c *Collection) InsertOne(ctx context.Context, id string, doc any) error {
	d, err := withID(id, doc)
	if err != nil {
		return err
	}
	if _, err := c.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert %s/%s: %w", c.Name(), id, err)
	}
	return nil
}

// ReplaceOne implements store.Collection.
func (c *Collection) ReplaceOne(ctx context.Context, id string, doc any) error {
	d, err := withID(id, doc)
	if err != nil {
		return err
	}
	_, err = c.coll.ReplaceOne(ctx, byID(id), d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", c.Name(), id, err)
	}
	return nil
}

// DeleteOne implements store.Collection.
func (c *Collection) DeleteOne(ctx context.Context, id string) error {
	if _, err := c.coll.DeleteOne(ctx, byID(id)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.Name(), id, err)
	}
	return nil
}

// DeleteMany implements store.Collection.
func (c *Collection) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	filter, err := translateFilter(f)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete many %s: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

// Count implements store.Collection.
func (c *Collection) Count(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	filter, err := translateFilter(f)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

// Exists implements store.Collection.
func (c *Collection) Exists(ctx context.Context, f store.Filter) (bool, error) {
	_, err := c.FindOne(ctx, f)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

var (
	_ store.Client     = (*Client)(nil)
	_ store.Database   = (*Database)(nil)
	_ store.Collection = (*Collection)(nil)
	_ store.Watcher    = (*Collection)(nil)
)
