// Package resource tracks opaque resource instances crossing a module
// boundary.
//
// A Table is a reference-counted handle slab for one resource type. The
// module only ever sees the integer handle; ownership and aliasing live in
// the table.
//
// # Lifecycle
//
//	table := resource.NewTable("file", func(v any) error {
//	    return v.(*os.File).Close()
//	})
//
//	h, _ := table.Insert(f)   // refcount 1
//	table.Clone(h)            // refcount 2
//	table.Drop(h)             // refcount 1
//	table.Drop(h)             // refcount 0: entry removed, destructor runs
//	table.Get(h)              // InvalidHandle
//
// A slot returns to the free list only after its count reaches zero, and
// reuse bumps the slot generation so stale owners cannot touch the new entry.
//
// # Owners and borrows
//
// Owned holds one reference and gives it back exactly once: explicitly via
// Drop, by handing it across the boundary with Release, or through a
// runtime cleanup when the wrapper is collected. Both release paths go
// through the same table drop.
//
//	o, _ := table.Own(f)
//	b := o.Borrow()            // non-owning, valid while o lives
//	h, _ := o.Release()        // module now owns the reference
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %s %d refs=%d", e.Resource, e.Type, e.Handle, e.Refs)
//	}))
//
// Observers and destructors run outside the table lock.
package resource
