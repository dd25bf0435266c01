package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/jacentio/docrepo/internal/shard"
	"github.com/jacentio/docrepo/store"
)

// operationOf maps a stream event name to a store operation.
func operationOf(eventName string) (store.Operation, bool) {
	switch eventName {
	case string(streamtypes.OperationTypeInsert):
		return store.OperationInsert, true
	case string(streamtypes.OperationTypeModify):
		return store.OperationUpdate, true
	case string(streamtypes.OperationTypeRemove):
		return store.OperationDelete, true
	}
	return "", false
}

// Watch implements store.Watcher. The table must have a stream enabled. When
// the stream carries keys only, full documents are looked up after the fact
// and events for documents deleted in the meantime are dropped.
func (c *Collection) Watch(ctx context.Context, ops ...store.Operation) (store.ChangeStream, error) {
	if c.client.streams == nil {
		return nil, store.ErrWatchUnsupported
	}
	out, err := c.client.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", c.table, err)
	}
	if out.Table == nil || out.Table.LatestStreamArn == nil {
		return nil, fmt.Errorf("%w: table %s has no stream", store.ErrWatchUnsupported, c.table)
	}
	if spec := out.Table.StreamSpecification; spec != nil && !aws.ToBool(spec.StreamEnabled) {
		return nil, fmt.Errorf("%w: stream disabled on table %s", store.ErrWatchUnsupported, c.table)
	}

	s := &changeStream{
		coll:  c,
		arn:   aws.ToString(out.Table.LatestStreamArn),
		ops:   ops,
		known: make(map[string]bool),
		done:  make(chan struct{}),
	}
	if err := s.open(ctx, streamtypes.ShardIteratorTypeLatest, true); err != nil {
		return nil, err
	}
	return s, nil
}

type shardReader struct {
	id       string
	iterator *string
}

// changeStream polls every open shard of a table stream. Next must not be
// called concurrently.
type changeStream struct {
	coll    *Collection
	arn     string
	ops     []store.Operation
	readers []*shardReader
	known   map[string]bool
	pending []store.ChangeEvent
	done    chan struct{}
	once    sync.Once
}

// describe lists every shard of the stream.
func (s *changeStream) describe(ctx context.Context) ([]shard.Info, error) {
	var shards []shard.Info
	var start *string
	for {
		out, err := s.coll.client.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(s.arn),
			ExclusiveStartShardId: start,
		})
		if err != nil {
			return nil, fmt.Errorf("describe stream %s: %w", s.arn, err)
		}
		if out.StreamDescription == nil {
			return shards, nil
		}
		for _, sh := range out.StreamDescription.Shards {
			info := shard.Info{
				ID:       aws.ToString(sh.ShardId),
				ParentID: aws.ToString(sh.ParentShardId),
			}
			if r := sh.SequenceNumberRange; r != nil && r.EndingSequenceNumber != nil {
				info.Closed = true
			}
			shards = append(shards, info)
		}
		start = out.StreamDescription.LastEvaluatedShardId
		if start == nil {
			return shards, nil
		}
	}
}

// open starts readers on shards not seen before. The initial open reads only
// open shards from their tip; later opens read new child shards from the start.
func (s *changeStream) open(ctx context.Context, from streamtypes.ShardIteratorType, initial bool) error {
	shards, err := s.describe(ctx)
	if err != nil {
		return err
	}
	if initial {
		for _, sh := range shards {
			if sh.Closed {
				s.known[sh.ID] = true
			}
		}
		shards = shard.Open(shards)
	} else {
		shards = shard.Lineage(shards)
	}

	for _, sh := range shards {
		if s.known[sh.ID] {
			continue
		}
		out, err := s.coll.client.streams.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         aws.String(s.arn),
			ShardId:           aws.String(sh.ID),
			ShardIteratorType: from,
		})
		if err != nil {
			return fmt.Errorf("shard iterator %s: %w", sh.ID, err)
		}
		s.known[sh.ID] = true
		s.readers = append(s.readers, &shardReader{id: sh.ID, iterator: out.ShardIterator})
	}
	return nil
}

// poll reads one batch from every shard and queues the wanted events.
func (s *changeStream) poll(ctx context.Context) error {
	exhausted := len(s.readers) == 0
	active := s.readers[:0]
	for _, r := range s.readers {
		out, err := s.coll.client.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: r.iterator,
		})
		if err != nil {
			return fmt.Errorf("get records %s: %w", r.id, err)
		}
		for _, rec := range out.Records {
			ev, ok, err := s.convert(ctx, rec)
			if err != nil {
				return err
			}
			if ok {
				s.pending = append(s.pending, ev)
			}
		}
		if out.NextShardIterator == nil {
			exhausted = true
			continue
		}
		r.iterator = out.NextShardIterator
		active = append(active, r)
	}
	s.readers = active

	if exhausted {
		return s.open(ctx, streamtypes.ShardIteratorTypeTrimHorizon, false)
	}
	return nil
}

func (s *changeStream) convert(ctx context.Context, rec streamtypes.Record) (store.ChangeEvent, bool, error) {
	op, ok := operationOf(string(rec.EventName))
	if !ok || !store.Wants(s.ops, op) || rec.Dynamodb == nil {
		return store.ChangeEvent{}, false, nil
	}

	keys, err := attributevalue.FromDynamoDBStreamsMap(rec.Dynamodb.Keys)
	if err != nil {
		return store.ChangeEvent{}, false, fmt.Errorf("convert stream keys: %w", err)
	}
	ev := store.ChangeEvent{
		Operation:  op,
		DocumentID: getStringAttr(keys, idAttr),
	}
	if t := rec.Dynamodb.ApproximateCreationDateTime; t != nil {
		ev.Time = *t
	}
	if op == store.OperationDelete {
		return ev, true, nil
	}

	if len(rec.Dynamodb.NewImage) > 0 {
		image, err := attributevalue.FromDynamoDBStreamsMap(rec.Dynamodb.NewImage)
		if err != nil {
			return store.ChangeEvent{}, false, fmt.Errorf("convert stream image: %w", err)
		}
		ev.Document = Record(image)
		return ev, true, nil
	}

	doc, err := s.coll.FindByID(ctx, ev.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ChangeEvent{}, false, nil
	}
	if err != nil {
		return store.ChangeEvent{}, false, err
	}
	ev.Document = doc
	return ev, true, nil
}

// Next implements store.ChangeStream.
func (s *changeStream) Next(ctx context.Context) (store.ChangeEvent, error) {
	for {
		select {
		case <-s.done:
			return store.ChangeEvent{}, store.ErrStreamClosed
		case <-ctx.Done():
			return store.ChangeEvent{}, ctx.Err()
		default:
		}

		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}

		if err := s.poll(ctx); err != nil {
			return store.ChangeEvent{}, err
		}
		if len(s.pending) > 0 {
			continue
		}

		select {
		case <-s.done:
			return store.ChangeEvent{}, store.ErrStreamClosed
		case <-ctx.Done():
			return store.ChangeEvent{}, ctx.Err()
		case <-time.After(s.coll.client.config.PollInterval):
		}
	}
}

// Close implements store.ChangeStream.
func (s *changeStream) Close(context.Context) error {
	s.once.Do(func() { close(s.done) })
	return nil
}
