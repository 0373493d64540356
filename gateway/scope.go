package gateway

import (
	"context"
	"fmt"
	"reflect"

	"vigila/cache"
)

// Scope restricts detail fetches of gw to entities whose fields equal
// params. An entity outside the scope is reported as NotFound so it never
// reaches a store of another owner.
func Scope[T cache.Entity](gw cache.Gateway[T], params cache.Params) cache.Gateway[T] {
	if len(params) == 0 {
		return gw
	}
	return &scoped[T]{next: gw, params: params, schema: schemaOf[T]()}
}

type scoped[T cache.Entity] struct {
	next   cache.Gateway[T]
	params cache.Params
	schema *schema
}

func (s *scoped[T]) FetchList(ctx context.Context, params cache.Params) ([]T, error) {
	return s.next.FetchList(ctx, params)
}

func (s *scoped[T]) FetchDetail(ctx context.Context, id string) (T, error) {
	e, err := s.next.FetchDetail(ctx, id)
	if err != nil {
		return e, err
	}
	if !s.schema.matches(e, s.params) {
		var zero T
		return zero, cache.NotFound(id)
	}
	return e, nil
}

// matches reports whether every param names a string field of e holding
// the param's value.
func (s *schema) matches(e any, params cache.Params) bool {
	v := reflect.Indirect(reflect.ValueOf(e))
	for k, want := range params {
		i, ok := s.fields[k]
		if !ok {
			return false
		}
		if fmt.Sprint(v.Field(i).Interface()) != want {
			return false
		}
	}
	return true
}
