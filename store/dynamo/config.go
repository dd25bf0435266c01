package dynamo

import "time"

// Config holds configuration for the DynamoDB Client.
type Config struct {
	// TablePrefix is prepended to every table name.
	// Tables are named "<prefix><database>.<collection>".
	// Default: ""
	TablePrefix string

	// DefaultDatabase is reported by Client.DefaultDatabase.
	// Default: "docrepo"
	DefaultDatabase string

	// Endpoint overrides the service endpoint (DynamoDB Local, LocalStack).
	// Default: "" (AWS resolved endpoint)
	Endpoint string

	// ConsistentRead requests strongly consistent reads for gets and scans.
	// Default: true
	ConsistentRead *bool

	// PollInterval is how long a change stream waits after an empty poll.
	// Default: 1s
	PollInterval time.Duration

	// TTLAttribute names the table's TTL attribute. When set, items whose
	// TTL has passed are excluded from reads before DynamoDB removes them.
	// Default: "" (no TTL filtering)
	TTLAttribute string

	// BatchParallelism bounds concurrent BatchWriteItem calls in DeleteMany.
	// Default: 4
	BatchParallelism int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	consistent := true
	return Config{
		DefaultDatabase:  "docrepo",
		ConsistentRead:   &consistent,
		PollInterval:     time.Second,
		BatchParallelism: 4,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.DefaultDatabase == "" {
		c.DefaultDatabase = "docrepo"
	}
	if c.ConsistentRead == nil {
		consistent := true
		c.ConsistentRead = &consistent
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchParallelism < 1 {
		c.BatchParallelism = 4
	}
}
