package store

import (
	"fmt"
	"strings"
)

// Operator is a comparison applied to one document field.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
)

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "in"
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Condition compares the field at a dotted path with a value.
type Condition struct {
	// Field is the serialized field name; nested fields use dots ("address.city").
	Field string

	// Op is the comparison.
	Op Operator

	// Value is compared against the field. OpIn expects a slice.
	Value any
}

// Filter is a conjunction of conditions. The zero Filter matches every document.
type Filter struct {
	Conditions []Condition
}

// Where builds a filter from conditions.
func Where(conds ...Condition) Filter {
	return Filter{Conditions: conds}
}

// All matches every document.
func All() Filter {
	return Filter{}
}

// ByID matches the document with the given identity.
func ByID(id string) Filter {
	return Where(Eq(IDField, id))
}

// And returns a new filter requiring f and every condition in other.
func (f Filter) And(other Filter) Filter {
	conds := make([]Condition, 0, len(f.Conditions)+len(other.Conditions))
	conds = append(conds, f.Conditions...)
	conds = append(conds, other.Conditions...)
	return Filter{Conditions: conds}
}

// IsEmpty reports whether the filter matches every document.
func (f Filter) IsEmpty() bool {
	return len(f.Conditions) == 0
}

// Validate checks that every condition names a field and a known operator.
func (f Filter) Validate() error {
	for i, c := range f.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("%w: condition %d has no field", ErrInvalidFilter, i)
		}
		for _, seg := range strings.Split(c.Field, ".") {
			if seg == "" {
				return fmt.Errorf("%w: field %q has an empty path segment", ErrInvalidFilter, c.Field)
			}
		}
		if c.Op < OpEq || c.Op > OpIn {
			return fmt.Errorf("%w: unknown operator %d on %q", ErrInvalidFilter, int(c.Op), c.Field)
		}
		if c.Op == OpIn {
			if _, err := inValues(c.Value); err != nil {
				return fmt.Errorf("%w: %q: %v", ErrInvalidFilter, c.Field, err)
			}
		}
	}
	return nil
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	parts := make([]string, len(f.Conditions))
	for i, c := range f.Conditions {
		parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
	}
	return strings.Join(parts, " AND ")
}

func Eq(field string, v any) Condition  { return Condition{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Condition  { return Condition{Field: field, Op: OpNe, Value: v} }
func Gt(field string, v any) Condition  { return Condition{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Condition  { return Condition{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// In matches documents whose field equals any of values.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

// SortDirection orders query results.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// Sort orders results by one field.
type Sort struct {
	Field     string
	Direction SortDirection
}

// Asc sorts by field ascending.
func Asc(field string) Sort { return Sort{Field: field, Direction: Ascending} }

// Desc sorts by field descending.
func Desc(field string) Sort { return Sort{Field: field, Direction: Descending} }

// Query selects, orders and pages documents.
type Query struct {
	Filter Filter
	Sort   []Sort

	// Skip is the number of matching documents to skip.
	Skip int64

	// Limit is the maximum number of documents to return (0 = no limit).
	Limit int64
}

// Validate checks the filter and sort fields.
func (q Query) Validate() error {
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	for _, s := range q.Sort {
		if strings.TrimSpace(s.Field) == "" {
			return fmt.Errorf("%w: sort has no field", ErrInvalidFilter)
		}
	}
	if q.Skip < 0 || q.Limit < 0 {
		return fmt.Errorf("%w: negative skip or limit", ErrInvalidFilter)
	}
	return nil
}

// Fields returns every field path referenced by the query.
func (q Query) Fields() []string {
	fields := make([]string, 0, len(q.Filter.Conditions)+len(q.Sort))
	for _, c := range q.Filter.Conditions {
		fields = append(fields, c.Field)
	}
	for _, s := range q.Sort {
		fields = append(fields, s.Field)
	}
	return fields
}

// Path splits a dotted field name into segments.
func Path(field string) []string {
	return strings.Split(field, ".")
}
