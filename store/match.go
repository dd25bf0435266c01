package store

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/goccy/go-json"
)

// Normalize converts v into its JSON data model (nil, bool, float64, string,
// []any, map[string]any) so it can be compared with decoded documents.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, float64, string:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

// inValues flattens the value of an OpIn condition.
func inValues(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("in expects a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// Operands returns the operands of an OpIn condition as given.
func Operands(c Condition) ([]any, error) {
	values, err := inValues(c.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, c.Field, err)
	}
	return values, nil
}

// InValues returns the normalized operands of an OpIn condition.
func InValues(c Condition) ([]any, error) {
	values, err := Operands(c)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if values[i], err = Normalize(v); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Lookup returns the value at a dotted path within a decoded document.
func Lookup(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, seg := range Path(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// rank orders values of different kinds: null, bool, number, string, everything else.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

// Compare orders two normalized values. Values of different kinds order by kind.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Match evaluates f against a decoded document.
func Match(doc map[string]any, f Filter) (bool, error) {
	for _, c := range f.Conditions {
		ok, err := matchCondition(doc, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchCondition(doc map[string]any, c Condition) (bool, error) {
	got, _ := Lookup(doc, c.Field)

	if c.Op == OpIn {
		values, err := InValues(c)
		if err != nil {
			return false, err
		}
		for _, v := range values {
			if Compare(got, v) == 0 {
				return true, nil
			}
		}
		return false, nil
	}

	want, err := Normalize(c.Value)
	if err != nil {
		return false, err
	}
	cmp := Compare(got, want)

	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	}
	// Ordering comparisons never match across kinds.
	if rank(got) != rank(want) {
		return false, nil
	}
	switch c.Op {
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("%w: unknown operator %d", ErrInvalidFilter, int(c.Op))
}

// SortOrder returns the permutation that orders docs by sorts. The sort is
// stable so documents with equal keys keep their store order.
func SortOrder(docs []map[string]any, sorts []Sort) []int {
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	if len(sorts) == 0 {
		return idx
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return lessBy(docs[idx[i]], docs[idx[j]], sorts)
	})
	return idx
}

func lessBy(a, b map[string]any, sorts []Sort) bool {
	for _, s := range sorts {
		av, _ := Lookup(a, s.Field)
		bv, _ := Lookup(b, s.Field)
		cmp := Compare(av, bv)
		if cmp == 0 {
			continue
		}
		if s.Direction == Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// Page applies skip and limit to n items and returns the resulting bounds.
func Page(n int, skip, limit int64) (start, end int) {
	start = int(min(skip, int64(n)))
	end = n
	if limit > 0 && int64(start)+limit < int64(n) {
		end = start + int(limit)
	}
	return start, end
}
