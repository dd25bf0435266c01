package sqlite

import (
	"fmt"
	"strings"

	"github.com/jacentio/docrepo/store"
)

var comparators = map[store.Operator]string{
	store.OpEq:  "=",
	store.OpNe:  "IS NOT",
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

// jsonPath renders a dotted field as a json_extract path. Segments are
// quoted so names with special characters stay literal.
func jsonPath(field string) string {
	segments := store.Path(field)
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range segments {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// column returns the SQL expression and its arguments for a field.
func column(field string) (string, []any) {
	if field == store.IDField {
		return "id", nil
	}
	return "json_extract(data, ?)", []any{jsonPath(field)}
}

// bindValue converts a normalized value to a driver argument.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// translateFilter builds a WHERE clause. Values are compared in their JSON
// data model, so times and other marshalers compare by their encoded form.
func translateFilter(f store.Filter) (string, []any, error) {
	if f.IsEmpty() {
		return "1", nil, nil
	}
	clauses := make([]string, 0, len(f.Conditions))
	var args []any
	for _, c := range f.Conditions {
		col, colArgs := column(c.Field)

		if c.Op == store.OpIn {
			values, err := store.InValues(c)
			if err != nil {
				return "", nil, err
			}
			if len(values) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			placeholders := make([]string, len(values))
			args = append(args, colArgs...)
			for i, v := range values {
				placeholders[i] = "?"
				args = append(args, bindValue(v))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
			continue
		}

		comparator, ok := comparators[c.Op]
		if !ok {
			return "", nil, fmt.Errorf("%w: unsupported operator %s", store.ErrInvalidFilter, c.Op)
		}
		value, err := store.Normalize(c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", store.ErrInvalidFilter, c.Field, err)
		}
		if value == nil {
			if c.Op == store.OpEq {
				clauses = append(clauses, col+" IS NULL")
			} else {
				clauses = append(clauses, col+" IS NOT NULL")
			}
			args = append(args, colArgs...)
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			return "", nil, fmt.Errorf("%w: %s: composite values are not comparable", store.ErrInvalidFilter, c.Field)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", col, comparator))
		args = append(args, colArgs...)
		args = append(args, bindValue(value))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// translateSort builds an ORDER BY clause ending in insertion order.
func translateSort(sorts []store.Sort) (string, []any) {
	parts := make([]string, 0, len(sorts)+1)
	var args []any
	for _, s := range sorts {
		col, colArgs := column(s.Field)
		dir := "ASC"
		if s.Direction == store.Descending {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
		args = append(args, colArgs...)
	}
	parts = append(parts, "seq ASC")
	return strings.Join(parts, ", "), args
}
