// Package gateway implements the network calls of every domain against the
// configured backend: a Mongo database, a Postgres database or a hosted
// PostgREST endpoint.
package gateway

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"vigila/cache"
)

// Backend is a cache gateway that can also write.
type Backend[T cache.Entity] interface {
	cache.Gateway[T]
	Insert(ctx context.Context, e T) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// WithTimeout bounds every call of b by d.
func WithTimeout[T cache.Entity](b Backend[T], d time.Duration) Backend[T] {
	if d <= 0 {
		return b
	}
	return &timeout[T]{next: b, d: d}
}

type timeout[T cache.Entity] struct {
	next Backend[T]
	d    time.Duration
}

func (t *timeout[T]) FetchList(ctx context.Context, params cache.Params) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.FetchList(ctx, params)
}

func (t *timeout[T]) FetchDetail(ctx context.Context, id string) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.FetchDetail(ctx, id)
}

func (t *timeout[T]) Insert(ctx context.Context, e T) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Insert(ctx, e)
}

func (t *timeout[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Update(ctx, id, fields)
}

func (t *timeout[T]) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Delete(ctx, id)
}

// schema maps the json name of every field of an entity type to its bson
// field and its SQL column.
type schema struct {
	bson   map[string]string
	column map[string]string
	// columns in declaration order
	columns []string
	names   []string
	index   map[string]int
	// json name -> field index
	fields map[string]int
}

var schemas sync.Map // reflect.Type -> *schema

func schemaOf[T any]() *schema {
	t := reflect.TypeFor[T]()
	if s, ok := schemas.Load(t); ok {
		return s.(*schema)
	}
	s := &schema{bson: map[string]string{}, column: map[string]string{}, index: map[string]int{}, fields: map[string]int{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tagName(f.Tag.Get("json"))
		if name == "" || name == "-" {
			continue
		}
		s.fields[name] = i
		if b := tagName(f.Tag.Get("bson")); b != "" && b != "-" {
			s.bson[name] = b
		}
		if c := tagName(f.Tag.Get("db")); c != "" && c != "-" {
			s.column[name] = c
			s.columns = append(s.columns, c)
			s.names = append(s.names, name)
			s.index[c] = i
		}
	}
	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*schema)
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func (s *schema) bsonField(key string) (string, error) {
	f, ok := s.bson[key]
	if !ok {
		return "", fmt.Errorf("unknown field %q", key)
	}
	return f, nil
}

func (s *schema) sqlColumn(key string) (string, error) {
	c, ok := s.column[key]
	if !ok {
		return "", fmt.Errorf("unknown field %q", key)
	}
	return c, nil
}

// row returns e keyed by column.
func (s *schema) row(e any) map[string]any {
	vals := s.values(e)
	out := make(map[string]any, len(vals))
	for i, c := range s.columns {
		out[c] = vals[i]
	}
	return out
}

// values returns the column values of e in declaration order.
func (s *schema) values(e any) []any {
	v := reflect.Indirect(reflect.ValueOf(e))
	out := make([]any, len(s.columns))
	for i, c := range s.columns {
		out[i] = v.Field(s.index[c]).Interface()
	}
	return out
}
