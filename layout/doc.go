// Package layout computes Canonical ABI layouts for model types.
//
// A Layout carries the size and alignment of a type in linear memory together
// with its flattening: the ordered core value types it occupies when passed
// by value. Function signatures apply the flattening limits and decide, once
// per parameter list and once per result, whether values spill to memory.
//
// # Layout Rules
//
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records and tuples: fields laid out sequentially with padding for alignment
//   - Variants: discriminant followed by the largest payload case
//   - Lists/Strings: (pointer, length) pair in memory, content elsewhere
//   - Handles: a single i32 table index
//
// # Usage
//
//	e := layout.New()
//	l := e.Of(typ)              // l.Size, l.Align, l.Flat, l.Offsets
//	sig := e.Signature(fn, layout.Export)
package layout
