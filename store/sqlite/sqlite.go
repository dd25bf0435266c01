// Package sqlite stores documents in an embedded SQLite database.
//
// Each collection is a table named "<database>.<collection>" holding the
// document identity and its JSON encoding. Filters and sorts evaluate with
// json_extract against the encoded document, so field names are json names.
// SQLite has no change feed; collections do not implement store.Watcher.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jacentio/docrepo/store"
)

// Config holds configuration for the SQLite Client.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in process.
	// Default: ":memory:"
	Path string

	// DefaultDatabase is reported by Client.DefaultDatabase.
	// Default: "docrepo"
	DefaultDatabase string

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:            ":memory:",
		DefaultDatabase: "docrepo",
		BusyTimeout:     5 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.DefaultDatabase == "" {
		c.DefaultDatabase = "docrepo"
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c Config) memory() bool {
	return c.Path == ":memory:"
}

func (c Config) dsn() string {
	pragmas := fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds())
	if c.memory() {
		return "file::memory:?" + pragmas
	}
	return "file:" + c.Path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Client is a SQLite store.Client.
type Client struct {
	db     *sql.DB
	config Config

	mu     sync.Mutex
	tables map[string]bool
}

// Open opens (creating if needed) the database at config.Path.
func Open(ctx context.Context, config Config) (*Client, error) {
	config.validate()

	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.memory() {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Client{
		db:     db,
		config: config,
		tables: make(map[string]bool),
	}, nil
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
	return &Database{client: c, name: name}, nil
}

// Close implements store.Client.
func (c *Client) Close(context.Context) error {
	return c.db.Close()
}

// ensureTable creates the collection table once per client.
func (c *Client) ensureTable(ctx context.Context, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables[table] {
		return nil
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		data JSON NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, quote(table))
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	c.tables[table] = true
	return nil
}

// quote renders a validated name as an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Database is a table-name namespace.
type Database struct {
	client *Client
	name   string
}

// Name implements store.Database.
func (d *Database) Name() string {
	return d.name
}

// Collection implements store.Database. The backing table is created on
// first use.
func (d *Database) Collection(ctx context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName("collection", name); err != nil {
		return nil, err
	}
	table := d.name + "." + name
	if err := d.client.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	return &Collection{db: d.client.db, name: name, table: quote(table)}, nil
}

// record is a stored JSON document.
type record []byte

func (r record) Decode(v any) error {
	return json.Unmarshal(r, v)
}

// isUniqueViolation reports whether err is a primary key or unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

var (
	_ store.Client   = (*Client)(nil)
	_ store.Database = (*Database)(nil)
	_ store.Record   = record(nil)
)
