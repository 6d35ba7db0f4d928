package query

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Record is a projected result. Keys keep the order of the shape: scalar
// fields, then relations, then _count.
type Record struct {
	keys   []string
	values map[string]any
}

func NewRecord() *Record {
	return &Record{values: map[string]any{}}
}

// Set adds or replaces a key.
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in order.
func (r *Record) Keys() []string { return r.keys }

func (r *Record) Len() int { return len(r.keys) }

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var jsonIndex sync.Map // reflect.Type -> map[string]int

func fieldsByJSONName(t reflect.Type) map[string]int {
	if v, ok := jsonIndex.Load(t); ok {
		return v.(map[string]int)
	}
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		idx[name] = i
	}
	jsonIndex.Store(t, idx)
	return idx
}

// Project narrows a loaded entity (struct or pointer to struct) to shape.
// A nil pointer projects to nil.
func Project(s *Shape, v any) *Record {
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
	idx := fieldsByJSONName(rv.Type())
	rec := NewRecord()
	for _, f := range s.Fields {
		i, ok := idx[f.Name]
		if !ok {
			continue
		}
		rec.Set(f.Name, plain(rv.Field(i)))
	}
	for _, rs := range s.Relations {
		i, ok := idx[rs.Relation.Name]
		if !ok {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Slice {
			list := make([]*Record, 0, fv.Len())
			for j := 0; j < fv.Len(); j++ {
				list = append(list, Project(rs.Shape, fv.Index(j).Addr().Interface()))
			}
			rec.Set(rs.Relation.Name, list)
			continue
		}
		if sub := Project(rs.Shape, fv.Interface()); sub != nil {
			rec.Set(rs.Relation.Name, sub)
		} else {
			rec.Set(rs.Relation.Name, nil)
		}
	}
	if len(s.Counts) > 0 {
		counts := NewRecord()
		cv := reflect.Value{}
		if i, ok := idx[CountKey]; ok {
			cv = reflect.Indirect(rv.Field(i))
		}
		for _, cs := range s.Counts {
			var n int64
			if cv.IsValid() {
				if j, ok := fieldsByJSONName(cv.Type())[cs.Relation.Name]; ok {
					n = cv.Field(j).Int()
				}
			}
			counts.Set(cs.Relation.Name, n)
		}
		rec.Set(CountKey, counts)
	}
	return rec
}

// ProjectAll projects every element of a slice of entities.
func ProjectAll[T any](s *Shape, rows []T) []*Record {
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, Project(s, &rows[i]))
	}
	return out
}

func plain(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}
