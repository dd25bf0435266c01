package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/docrepo/store"
)

// batchWriteLimit is the maximum number of requests per BatchWriteItem call.
const batchWriteLimit = 25

// maxUnprocessedRetries bounds resubmission of unprocessed batch items.
const maxUnprocessedRetries = 5

// Collection is a DynamoDB table holding one collection.
type Collection struct {
	client *Client
	name   string
	table  string
}

// Name implements store.Collection.
func (c *Collection) Name() string {
	return c.name
}

// Table returns the backing table name.
func (c *Collection) Table() string {
	return c.table
}

func (c *Collection) scanInput(expr expression) *dynamodb.ScanInput {
	expr = withTTL(expr, c.client.config.TTLAttribute, time.Now())
	in := &dynamodb.ScanInput{
		TableName:      aws.String(c.table),
		ConsistentRead: c.client.config.ConsistentRead,
	}
	if !expr.empty() {
		in.FilterExpression = aws.String(expr.condition)
		in.ExpressionAttributeNames = orNil(expr.names)
		in.ExpressionAttributeValues = orNil(expr.values)
	}
	return in
}

// scan visits every item matching f until visit returns false.
func (c *Collection) scan(ctx context.Context, f store.Filter, visit func(Record) (bool, error)) error {
	expr, err := buildFilter(f)
	if err != nil {
		return err
	}
	ttl := c.client.config.TTLAttribute
	paginator := dynamodb.NewScanPaginator(c.client.api, c.scanInput(expr))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", c.table, err)
		}
		now := time.Now()
		for _, item := range page.Items {
			if isExpired(item, ttl, now) {
				continue
			}
			more, err := visit(Record(item))
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

// Find implements store.Collection. Without a sort the scan stops as soon as
// the requested page is filled.
func (c *Collection) Find(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var records []Record
	want := int64(-1)
	if len(q.Sort) == 0 && q.Limit > 0 {
		want = q.Skip + q.Limit
	}
	err := c.scan(ctx, q.Filter, func(r Record) (bool, error) {
		records = append(records, r)
		return want < 0 || int64(len(records)) < want, nil
	})
	if err != nil {
		return nil, err
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	if len(q.Sort) > 0 {
		docs := make([]map[string]any, len(records))
		for i, r := range records {
			if docs[i], err = r.generic(); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", c.table, r.ID(), err)
			}
		}
		order = store.SortOrder(docs, q.Sort)
	}

	start, end := store.Page(len(order), q.Skip, q.Limit)
	out := make([]store.Record, 0, end-start)
	for _, i := range order[start:end] {
		out = append(out, records[i])
	}
	return out, nil
}

// FindOne implements store.Collection.
func (c *Collection) FindOne(ctx context.Context, f store.Filter) (store.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var found Record
	err := c.scan(ctx, f, func(r Record) (bool, error) {
		found = r
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(ctx context.Context, id string) (store.Record, error) {
	out, err := c.client.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            keyOf(id),
		ConsistentRead: c.client.config.ConsistentRead,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.table, id, err)
	}
	if out.Item == nil || isExpired(out.Item, c.client.config.TTLAttribute, time.Now()) {
		return nil, store.ErrNotFound
	}
	return Record(out.Item), nil
}

// InsertOne implements store.Collection.
func (c *Collection) InsertOne(ctx context.Context, id string, doc any) error {
	item, err := marshalDocument(id, doc)
	if err != nil {
		return err
	}
	_, err = c.client.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": idAttr},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert %s/%s: %w", c.table, id, err)
	}
	return nil
}

// ReplaceOne implements store.Collection. PutItem replaces the whole item
// and creates it when absent.
func (c *Collection) ReplaceOne(ctx context.Context, id string, doc any) error {
	item, err := marshalDocument(id, doc)
	if err != nil {
		return err
	}
	_, err = c.client.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", c.table, id, err)
	}
	return nil
}

// DeleteOne implements store.Collection.
func (c *Collection) DeleteOne(ctx context.Context, id string) error {
	_, err := c.client.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       keyOf(id),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.table, id, err)
	}
	return nil
}

// DeleteMany implements store.Collection. Matching keys are collected with a
// scan and removed with parallel BatchWriteItem calls.
func (c *Collection) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	var ids []string
	err := c.scan(ctx, f, func(r Record) (bool, error) {
		ids = append(ids, r.ID())
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.client.config.BatchParallelism)
	for start := 0; start < len(ids); start += batchWriteLimit {
		chunk := ids[start:min(start+batchWriteLimit, len(ids))]
		g.Go(func() error {
			return c.deleteBatch(gctx, chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (c *Collection) deleteBatch(ctx context.Context, ids []string) error {
	requests := make([]types.WriteRequest, len(ids))
	for i, id := range ids {
		requests[i] = types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyOf(id)},
		}
	}

	pending := map[string][]types.WriteRequest{c.table: requests}
	for attempt := 0; len(pending[c.table]) > 0; attempt++ {
		if attempt > maxUnprocessedRetries {
			return fmt.Errorf("delete batch %s: %d items unprocessed after %d attempts",
				c.table, len(pending[c.table]), attempt)
		}
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 50 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		out, err := c.client.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("delete batch %s: %w", c.table, err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

// Count implements store.Collection.
func (c *Collection) Count(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	expr, err := buildFilter(f)
	if err != nil {
		return 0, err
	}
	in := c.scanInput(expr)
	in.Select = types.SelectCount

	var total int64
	paginator := dynamodb.NewScanPaginator(c.client.api, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", c.table, err)
		}
		total += int64(page.Count)
	}
	return total, nil
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
