// Package engine binds core WebAssembly modules to an interface description
// and runs them on wazero.
//
// An Instance drives every call through the plans built by package abi:
// exports are called by lowering the host arguments, invoking the core
// export and lifting its results; imports are served as wazero host
// functions that lift the core arguments, call a HostFunc and lower its
// result back.
//
// # Module contract
//
// The module must export its linear memory and, when any value crosses the
// boundary through memory, an allocator:
//
//	alloc(size, align i32) -> i32                         preferred
//	cabi_realloc(old, old_size, align, new_size) -> i32   fallback
//	free / cabi_free                                      optional
//
// Exports whose result holds strings or lists must be paired with a
// cabi_post_<export> function releasing the result. It is called exactly
// once per call, after the result has been lifted. A missing post-return
// export is reported at instantiation.
//
// # Resources
//
// For every resource of the interface the host module provides
//
//	[resource-new]<r>(rep i32) -> i32
//	[resource-rep]<r>(handle i32) -> i32
//	[resource-drop]<r>(handle i32)
//
// backed by one resource.Table per resource. When the module exports
// [dtor]<r>, dropping the last reference calls it with the representation;
// host values implementing resource.Dropper are released through Drop.
//
// # Limits
//
// When the flattened parameters exceed 16 core values they are stored in
// an allocated area and passed as one pointer. Results wider than one core
// value are returned through memory: exports return a pointer, imports
// receive a trailing return pointer.
package engine
