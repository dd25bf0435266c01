// Package dynamo stores documents in Amazon DynamoDB.
//
// Each collection is a table named "<prefix><database>.<collection>" with a
// string partition key "id". Documents are encoded with attributevalue using
// their json tags, so field names match the other backends.
//
// Filters translate to scan filter expressions; sorting and paging happen
// client-side after the scan. Collections whose table has a stream enabled
// implement store.Watcher through DynamoDB Streams.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"

	"github.com/jacentio/docrepo/store"
)

// API is the subset of the DynamoDB client used by this package.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// StreamsAPI is the subset of the DynamoDB Streams client used for change streams.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// Client is a DynamoDB store.Client.
type Client struct {
	api     API
	streams StreamsAPI
	config  Config
}

// New creates a Client. streams may be nil, in which case Watch fails with
// store.ErrWatchUnsupported.
func New(api API, streams StreamsAPI, config Config) *Client {
	config.validate()
	return &Client{
		api:     api,
		streams: streams,
		config:  config,
	}
}

// NewFromConfig creates a Client with DynamoDB and DynamoDB Streams clients
// built from an AWS config.
func NewFromConfig(cfg aws.Config, config Config) *Client {
	var ddbOpts []func(*dynamodb.Options)
	var streamOpts []func(*dynamodbstreams.Options)
	if config.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
		streamOpts = append(streamOpts, func(o *dynamodbstreams.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	return New(
		dynamodb.NewFromConfig(cfg, ddbOpts...),
		dynamodbstreams.NewFromConfig(cfg, streamOpts...),
		config,
	)
}

// DefaultDatabase implements store.Client.
func (c *Client) DefaultDatabase() string {
	return c.config.DefaultDatabase
}

// Database implements store.Client. DynamoDB has no databases; the name
// becomes part of every table name.
func (c *Client) Database(_ context.Context, name string) (store.Database, error) {
	if err := store.ValidateName("database", name); err != nil {
		return nil, err
	}
	return &Database{client: c, name: name}, nil
}

// Close implements store.Client. The SDK clients hold no resources to release.
func (c *Client) Close(context.Context) error {
	return nil
}

// TableName returns the table backing database/collection.
func (c *Client) TableName(database, collection string) string {
	return fmt.Sprintf("%s%s.%s", c.config.TablePrefix, database, collection)
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

// Collection implements store.Database. The table is not checked for
// existence; the first operation against a missing table fails with the
// SDK's ResourceNotFoundException.
func (d *Database) Collection(_ context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName("collection", name); err != nil {
		return nil, err
	}
	table := d.client.TableName(d.name, name)
	if len(table) > 255 {
		return nil, fmt.Errorf("%w: table name %q exceeds 255 characters", store.ErrInvalidName, table)
	}
	return &Collection{
		client: d.client,
		name:   name,
		table:  table,
	}, nil
}
