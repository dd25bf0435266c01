package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docrepo/store"
)

// maxInOperands is DynamoDB's limit on the IN comparator.
const maxInOperands = 100

// expression is a filter expression with its placeholder maps.
type expression struct {
	condition string
	names     map[string]string
	values    map[string]types.AttributeValue
}

func (e expression) empty() bool {
	return e.condition == ""
}

var comparators = map[store.Operator]string{
	store.OpEq:  "=",
	store.OpNe:  "<>",
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

// buildFilter translates a filter into a DynamoDB filter expression.
// Attribute names and values always go through #fN / :vN placeholders so
// reserved words and dotted paths need no escaping.
func buildFilter(f store.Filter) (expression, error) {
	expr := expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
	if f.IsEmpty() {
		return expr, nil
	}

	clauses := make([]string, 0, len(f.Conditions))
	for i, c := range f.Conditions {
		path := expr.path(i, c.Field)
		clause, err := expr.clause(i, path, c)
		if err != nil {
			return expression{}, err
		}
		clauses = append(clauses, clause)
	}
	expr.condition = strings.Join(clauses, " AND ")
	return expr, nil
}

func (e *expression) path(i int, field string) string {
	segments := store.Path(field)
	parts := make([]string, len(segments))
	for j, seg := range segments {
		placeholder := fmt.Sprintf("#f%d_%d", i, j)
		e.names[placeholder] = seg
		parts[j] = placeholder
	}
	return strings.Join(parts, ".")
}

func (e *expression) value(placeholder string, v any) error {
	av, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrInvalidFilter, placeholder, err)
	}
	e.values[placeholder] = av
	return nil
}

func (e *expression) clause(i int, path string, c store.Condition) (string, error) {
	switch c.Op {
	case store.OpIn:
		values, err := store.Operands(c)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			// Nothing can match an empty set.
			return fmt.Sprintf("attribute_exists(%s) AND attribute_not_exists(%s)", path, path), nil
		}
		if len(values) > maxInOperands {
			return "", fmt.Errorf("%w: %s in: %d operands exceeds %d", store.ErrInvalidFilter, c.Field, len(values), maxInOperands)
		}
		operands := make([]string, len(values))
		for j, v := range values {
			placeholder := fmt.Sprintf(":v%d_%d", i, j)
			if err := e.value(placeholder, v); err != nil {
				return "", err
			}
			operands[j] = placeholder
		}
		return fmt.Sprintf("%s IN (%s)", path, strings.Join(operands, ", ")), nil

	case store.OpEq, store.OpNe:
		if c.Value == nil {
			e.values[":null"] = &types.AttributeValueMemberS{Value: "NULL"}
			if c.Op == store.OpEq {
				return fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, :null))", path, path), nil
			}
			return fmt.Sprintf("(attribute_exists(%s) AND NOT attribute_type(%s, :null))", path, path), nil
		}
	}

	comparator, ok := comparators[c.Op]
	if !ok {
		return "", fmt.Errorf("%w: unsupported operator %s", store.ErrInvalidFilter, c.Op)
	}
	placeholder := fmt.Sprintf(":v%d", i)
	if err := e.value(placeholder, c.Value); err != nil {
		return "", err
	}
	if c.Op == store.OpNe {
		// A missing attribute differs from every value.
		return fmt.Sprintf("(attribute_not_exists(%s) OR %s <> %s)", path, path, placeholder), nil
	}
	return fmt.Sprintf("%s %s %s", path, comparator, placeholder), nil
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// orNil returns nil for empty maps; DynamoDB rejects empty placeholder maps.
func orNil[K comparable, V any](m map[K]V) map[K]V {
	if len(m) == 0 {
		return nil
	}
	return m
}
