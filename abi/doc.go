// Package abi generates and runs canonical ABI lowering and lifting plans.
//
// A Generator turns a type or function of the interface model into a Plan:
// a register-based instruction list that flattens host values into core
// values or linear memory and rebuilds them on the way back. The same plans
// drive the Machine, which executes them against a live module, and the
// emission backends, which translate them into source code.
//
// Host values follow the conventions listed in values.go. Lowering accepts
// a few extra shapes for convenience (any slice for a list, a struct for a
// record, an index for an enum); lifting always produces the canonical one.
package abi
