package dynamo

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docrepo/store"
)

// ConvertImage converts a Lambda stream image into a Record.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) (Record, error) {
	out := make(Record, len(image))
	for k, v := range image {
		av, err := convertAttr(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func convertAttr(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			av, err := convertAttr(item)
			if err != nil {
				return nil, err
			}
			out[i] = av
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := ConvertImage(v.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported data type %v", v.DataType())
}

// LambdaEvent converts a Lambda stream record into a change event. ok is
// false for event names that map to no store operation. Records without a
// new image produce an event with a nil Document.
func LambdaEvent(rec events.DynamoDBEventRecord) (ev store.ChangeEvent, ok bool, err error) {
	op, ok := operationOf(rec.EventName)
	if !ok {
		return store.ChangeEvent{}, false, nil
	}
	keys, err := ConvertImage(rec.Change.Keys)
	if err != nil {
		return store.ChangeEvent{}, false, fmt.Errorf("convert keys: %w", err)
	}
	ev = store.ChangeEvent{
		Operation:  op,
		DocumentID: keys.ID(),
		Time:       rec.Change.ApproximateCreationDateTime.Time,
	}
	if op != store.OperationDelete && len(rec.Change.NewImage) > 0 {
		image, err := ConvertImage(rec.Change.NewImage)
		if err != nil {
			return store.ChangeEvent{}, false, fmt.Errorf("convert image: %w", err)
		}
		ev.Document = image
	}
	return ev, true, nil
}
