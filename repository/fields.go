package repository

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jacentio/docrepo/store"
)

// fieldSet holds the top-level serialized field names of a document type.
// A nil set accepts every name (map-backed or otherwise opaque documents).
type fieldSet map[string]struct{}

func fieldsOf(t reflect.Type) fieldSet {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	set := fieldSet{store.IDField: {}}
	collectFields(t, set)
	return set
}

func collectFields(t reflect.Type, set fieldSet) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if f.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			collectFields(ft, set)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		set[name] = struct{}{}
	}
}

// check rejects queries naming a field the document cannot have.
func (s fieldSet) check(fields ...string) error {
	if s == nil {
		return nil
	}
	for _, field := range fields {
		root, _, _ := strings.Cut(field, ".")
		if _, ok := s[root]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	}
	return nil
}
