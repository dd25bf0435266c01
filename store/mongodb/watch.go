package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jacentio/docrepo/store"
)

// codeChangeStreamUnsupported is returned by standalone servers.
const codeChangeStreamUnsupported = 40573

// changeDocument is the subset of a change event this package reads.
type changeDocument struct {
	OperationType string              `bson:"operationType"`
	DocumentKey   bson.Raw            `bson:"documentKey"`
	FullDocument  bson.Raw            `bson:"fullDocument"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
}

// pipeline selects the requested operation types.
func pipeline(ops []store.Operation) mongo.Pipeline {
	if len(ops) == 0 {
		return mongo.Pipeline{}
	}
	types := make(bson.A, len(ops))
	for i, op := range ops {
		types[i] = string(op)
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: types}}}}}},
	}
}

// Watch implements store.Watcher. Update events carry the current document
// looked up at delivery time.
func (c *Collection) Watch(ctx context.Context, ops ...store.Operation) (store.ChangeStream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := c.coll.Watch(ctx, pipeline(ops), opts)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeChangeStreamUnsupported {
			return nil, fmt.Errorf("%w: %s", store.ErrWatchUnsupported, cmdErr.Message)
		}
		return nil, fmt.Errorf("watch %s: %w", c.Name(), err)
	}
	return &changeStream{cs: cs, ops: ops}, nil
}

type changeStream struct {
	cs     *mongo.ChangeStream
	ops    []store.Operation
	mu     sync.Mutex
	closed bool
}

// Next implements store.ChangeStream. Update events whose document was
// deleted before the lookup are skipped.
func (s *changeStream) Next(ctx context.Context) (store.ChangeEvent, error) {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return store.ChangeEvent{}, store.ErrStreamClosed
		}

		if !s.cs.Next(ctx) {
			if err := s.cs.Err(); err != nil {
				return store.ChangeEvent{}, fmt.Errorf("change stream: %w", err)
			}
			if err := ctx.Err(); err != nil {
				return store.ChangeEvent{}, err
			}
			return store.ChangeEvent{}, store.ErrStreamClosed
		}

		var doc changeDocument
		if err := s.cs.Decode(&doc); err != nil {
			return store.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
		}
		ev, ok := convert(doc)
		if ok && store.Wants(s.ops, ev.Operation) {
			return ev, nil
		}
	}
}

func convert(doc changeDocument) (store.ChangeEvent, bool) {
	op := store.Operation(doc.OperationType)
	switch op {
	case store.OperationInsert, store.OperationUpdate, store.OperationReplace, store.OperationDelete:
	default:
		return store.ChangeEvent{}, false
	}

	ev := store.ChangeEvent{
		Operation:  op,
		DocumentID: documentID(doc.DocumentKey),
	}
	if doc.ClusterTime.T != 0 {
		ev.Time = time.Unix(int64(doc.ClusterTime.T), 0).UTC()
	}
	if op == store.OperationDelete {
		return ev, true
	}
	if len(doc.FullDocument) == 0 {
		return store.ChangeEvent{}, false
	}
	ev.Document = Record(doc.FullDocument)
	return ev, true
}

// documentID renders the _id of a document key as a string.
func documentID(key bson.Raw) string {
	if len(key) == 0 {
		return ""
	}
	v, err := key.LookupErr(idKey)
	if err != nil {
		return ""
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return v.String()
}

// Close implements store.ChangeStream.
func (s *changeStream) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.cs.Close(ctx)
}
