package dynamo

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// fakeAPI is an in-memory DynamoDB covering the calls Collection makes.
// Scans ignore filter expressions and return every item, pageSize per page.
type fakeAPI struct {
	mu        sync.Mutex
	pageSize  int
	tables    map[string]*fakeTable
	scans     []*dynamodb.ScanInput
	batches   int
	unprocess int // number of leading batch calls that return one item unprocessed
	streamArn *string
}

type fakeTable struct {
	order []string
	items map[string]map[string]types.AttributeValue
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pageSize: 2,
		tables:   make(map[string]*fakeTable),
	}
}

func (f *fakeAPI) table(name string) *fakeTable {
	t, ok := f.tables[name]
	if !ok {
		t = &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
		f.tables[name] = t
	}
	return t
}

func (t *fakeTable) put(item map[string]types.AttributeValue) {
	id := getStringAttr(item, idAttr)
	if _, ok := t.items[id]; !ok {
		t.order = append(t.order, id)
	}
	t.items[id] = item
}

func (t *fakeTable) remove(id string) {
	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.table(aws.ToString(in.TableName)).items[getStringAttr(in.Key, idAttr)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(aws.ToString(in.TableName))
	if in.ConditionExpression != nil {
		if _, exists := t.items[getStringAttr(in.Item, idAttr)]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	t.put(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(aws.ToString(in.TableName)).remove(getStringAttr(in.Key, idAttr))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, in)
	t := f.table(aws.ToString(in.TableName))

	start := 0
	if in.ExclusiveStartKey != nil {
		last := getStringAttr(in.ExclusiveStartKey, idAttr)
		for i, id := range t.order {
			if id == last {
				start = i + 1
				break
			}
		}
	}
	end := min(start+f.pageSize, len(t.order))

	out := &dynamodb.ScanOutput{Count: int32(end - start)}
	if in.Select != types.SelectCount {
		for _, id := range t.order[start:end] {
			out.Items = append(out.Items, t.items[id])
		}
	}
	if end < len(t.order) {
		out.LastEvaluatedKey = keyOf(t.order[end-1])
	}
	return out, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	out := &dynamodb.BatchWriteItemOutput{}
	for table, requests := range in.RequestItems {
		if len(requests) > 1 && f.unprocess > 0 {
			f.unprocess--
			out.UnprocessedItems = map[string][]types.WriteRequest{table: requests[:1]}
			requests = requests[1:]
		}
		for _, r := range requests {
			if r.DeleteRequest == nil {
				return nil, fmt.Errorf("unexpected write request")
			}
			f.table(table).remove(getStringAttr(r.DeleteRequest.Key, idAttr))
		}
	}
	return out, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:       in.TableName,
			LatestStreamArn: f.streamArn,
		},
	}, nil
}

func (f *fakeAPI) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(table).items)
}

// fakeStreams serves queued records per shard. A closed shard returns a nil
// next iterator once its records are drained.
type fakeStreams struct {
	mu        sync.Mutex
	shards    []streamtypes.Shard
	records   map[string][]streamtypes.Record
	closed    map[string]bool
	iterTypes map[string]streamtypes.ShardIteratorType
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{
		records:   make(map[string][]streamtypes.Record),
		closed:    make(map[string]bool),
		iterTypes: make(map[string]streamtypes.ShardIteratorType),
	}
}

func (f *fakeStreams) addShard(id, parent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := streamtypes.Shard{
		ShardId:             aws.String(id),
		SequenceNumberRange: &streamtypes.SequenceNumberRange{StartingSequenceNumber: aws.String("1")},
	}
	if parent != "" {
		sh.ParentShardId = aws.String(parent)
	}
	f.shards = append(f.shards, sh)
}

func (f *fakeStreams) closeShard(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = true
	for i := range f.shards {
		if aws.ToString(f.shards[i].ShardId) == id {
			f.shards[i].SequenceNumberRange.EndingSequenceNumber = aws.String("99")
		}
	}
}

func (f *fakeStreams) push(shardID string, recs ...streamtypes.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[shardID] = append(f.records[shardID], recs...)
}

func (f *fakeStreams) DescribeStream(_ context.Context, in *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shards := make([]streamtypes.Shard, len(f.shards))
	copy(shards, f.shards)
	return &dynamodbstreams.DescribeStreamOutput{
		StreamDescription: &streamtypes.StreamDescription{
			StreamArn: in.StreamArn,
			Shards:    shards,
		},
	}, nil
}

func (f *fakeStreams) GetShardIterator(_ context.Context, in *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.ShardId)
	f.iterTypes[id] = in.ShardIteratorType
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: aws.String(id)}, nil
}

func (f *fakeStreams) GetRecords(_ context.Context, in *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.ShardIterator)
	out := &dynamodbstreams.GetRecordsOutput{Records: f.records[id]}
	delete(f.records, id)
	if !f.closed[id] {
		out.NextShardIterator = aws.String(id)
	}
	return out, nil
}

func streamRecord(op streamtypes.OperationType, id string, image map[string]streamtypes.AttributeValue) streamtypes.Record {
	return streamtypes.Record{
		EventName: op,
		Dynamodb: &streamtypes.StreamRecord{
			Keys: map[string]streamtypes.AttributeValue{
				idAttr: &streamtypes.AttributeValueMemberS{Value: id},
			},
			NewImage: image,
		},
	}
}
