package postgres

import (
	"reflect"
	"sync"
)

// rowLayout maps each db-tagged field of a row struct to its column.
// Anonymous struct fields are flattened, so a row can embed a domain model.
type rowLayout struct {
	columns []string
	paths   [][]int
}

var layouts sync.Map // reflect.Type -> *rowLayout

func layoutOf(t reflect.Type) *rowLayout {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := layouts.Load(t); ok {
		return cached.(*rowLayout)
	}
	l := &rowLayout{}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, l)
	}
	actual, _ := layouts.LoadOrStore(t, l)
	return actual.(*rowLayout)
}

func collectFields(t reflect.Type, prefix []int, l *rowLayout) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := append(append([]int(nil), prefix...), i)
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, path, l)
			}
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		l.columns = append(l.columns, tag)
		l.paths = append(l.paths, path)
	}
}

// ExtractDBColumns lists the db columns of T in field order. Repositories
// compute it once at package init for their SELECT lists.
func ExtractDBColumns[T any]() []string {
	cols := layoutOf(reflect.TypeFor[T]()).columns
	return append([]string(nil), cols...)
}

// StructToMap returns column -> value for a row struct, ready for
// squirrel's SetMap. Nil embedded pointers contribute no columns.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	l := layoutOf(rv.Type())
	out := make(map[string]any, len(l.columns))
	for i, path := range l.paths {
		fv, err := rv.FieldByIndexErr(path)
		if err != nil {
			continue
		}
		out[l.columns[i]] = fv.Interface()
	}
	return out
}
