package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jacentio/docrepo/store"
)

// idKey is MongoDB's identity field.
const idKey = "_id"

var operators = map[store.Operator]string{
	store.OpEq:  "$eq",
	store.OpNe:  "$ne",
	store.OpGt:  "$gt",
	store.OpGte: "$gte",
	store.OpLt:  "$lt",
	store.OpLte: "$lte",
	store.OpIn:  "$in",
}

// fieldName maps a filter field to its stored path.
func fieldName(field string) string {
	if field == store.IDField {
		return idKey
	}
	return field
}

// translateFilter builds a query document. A single condition is expressed
// directly; several are combined with $and so repeated fields stay distinct.
func translateFilter(f store.Filter) (bson.D, error) {
	if f.IsEmpty() {
		return bson.D{}, nil
	}
	clauses := make(bson.A, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		op, ok := operators[c.Op]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported operator %s", store.ErrInvalidFilter, c.Op)
		}
		value := c.Value
		if c.Op == store.OpIn {
			values, err := store.Operands(c)
			if err != nil {
				return nil, err
			}
			value = bson.A(values)
		}
		clauses = append(clauses, bson.D{{Key: fieldName(c.Field), Value: bson.D{{Key: op, Value: value}}}})
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func translateSort(sorts []store.Sort) bson.D {
	out := make(bson.D, 0, len(sorts))
	for _, s := range sorts {
		dir := 1
		if s.Direction == store.Descending {
			dir = -1
		}
		out = append(out, bson.E{Key: fieldName(s.Field), Value: dir})
	}
	return out
}

func byID(id string) bson.D {
	return bson.D{{Key: idKey, Value: id}}
}

// withID encodes doc and forces its _id to id, placing it first.
func withID(id string, doc any) (bson.D, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", id, err)
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", id, err)
	}
	out := make(bson.D, 0, len(d)+1)
	out = append(out, bson.E{Key: idKey, Value: id})
	for _, e := range d {
		if e.Key != idKey {
			out = append(out, e)
		}
	}
	return out, nil
}
