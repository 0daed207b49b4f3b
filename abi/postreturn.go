package abi

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/witbind/model"
)

// NeedsPostReturn reports whether a result of type t can point into module
// memory, so the module must be told when the host is done reading it.
func NeedsPostReturn(t *model.Type) bool {
	if t == nil {
		return false
	}
	return t.Contains(func(c *model.Type) bool {
		return c.Kind == model.KindString || c.Kind == model.KindList
	})
}

// PostReturn is the pending release of one call's results. Invoke calls the
// post-return export with the raw core results at most once.
type PostReturn struct {
	Name    string
	Results []uint64

	done atomic.Bool
}

// NewPostReturn records the results of a call to release later. results is
// copied.
func NewPostReturn(name string, results []uint64) *PostReturn {
	return &PostReturn{Name: name, Results: append([]uint64(nil), results...)}
}

// Invoke runs the post-return export. Later calls return nil.
func (p *PostReturn) Invoke(ctx context.Context, c Callee) error {
	if p == nil || !p.done.CompareAndSwap(false, true) {
		return nil
	}
	_, err := c.CallWasm(ctx, p.Name, p.Results)
	return err
}

// Done reports whether Invoke already ran.
func (p *PostReturn) Done() bool { return p.done.Load() }
