package resource

import (
	"fmt"

	"github.com/wippyai/witbind/errors"
)

// Typed gives type-safe access to a table whose instances are all T.
type Typed[T any] struct {
	*Table
}

// NewTyped wraps t.
func NewTyped[T any](t *Table) Typed[T] {
	return Typed[T]{Table: t}
}

// Insert stores v with a reference count of 1.
func (t Typed[T]) Insert(v T) (Handle, error) {
	return t.Table.Insert(v)
}

// Own inserts v and returns an owning wrapper.
func (t Typed[T]) Own(v T) (*Owned, error) {
	return t.Table.Own(v)
}

// Get returns the instance behind h.
func (t Typed[T]) Get(h Handle) (T, error) {
	var zero T
	v, err := t.Table.Get(h)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseResource, []string{t.name}, fmt.Sprintf("%T", v), fmt.Sprintf("%T", zero))
	}
	return tv, nil
}

// Each calls fn for every live entry holding a T.
func (t Typed[T]) Each(fn func(Handle, T) bool) {
	t.Table.Each(func(h Handle, v any) bool {
		if tv, ok := v.(T); ok {
			return fn(h, tv)
		}
		return true
	})
}
