package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docrepo/store"
)

// idAttr is the partition key attribute of every collection table.
const idAttr = store.IDField

func encodeOptions(o *attributevalue.EncoderOptions) {
	o.TagKey = "json"
}

func decodeOptions(o *attributevalue.DecoderOptions) {
	o.TagKey = "json"
}

// marshalDocument encodes doc as an item keyed by id.
func marshalDocument(id string, doc any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMapWithOptions(doc, encodeOptions)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", id, err)
	}
	if item == nil {
		item = make(map[string]types.AttributeValue)
	}
	item[idAttr] = &types.AttributeValueMemberS{Value: id}
	return item, nil
}

func marshalValue(v any) (types.AttributeValue, error) {
	return attributevalue.MarshalWithOptions(v, encodeOptions)
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		idAttr: &types.AttributeValueMemberS{Value: id},
	}
}

// getStringAttr safely extracts a string attribute from an item.
func getStringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// Record is a stored item that decodes through attributevalue with json tags.
type Record map[string]types.AttributeValue

// Decode implements store.Record.
func (r Record) Decode(v any) error {
	return attributevalue.UnmarshalMapWithOptions(r, v, decodeOptions)
}

// ID returns the item's partition key.
func (r Record) ID() string {
	return getStringAttr(r, idAttr)
}

// generic decodes the item for client-side matching and sorting.
func (r Record) generic() (map[string]any, error) {
	var m map[string]any
	if err := r.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

var _ store.Record = Record(nil)
