// Package witbind generates canonical-ABI glue between a host and core
// WebAssembly modules described by an interface.
//
// The root package holds the Memory and Allocator contracts shared by the
// plan interpreter and the runtime. The work is split across:
//
//	witbind/
//	├── model/      Interface types, functions and resources
//	├── layout/     Sizes, alignments, field offsets and flat signatures
//	├── abi/        Lowering and lifting plans and their interpreter
//	├── resource/   Handle tables with own and borrow semantics
//	├── engine/     wazero instances driven by abi plans
//	├── emit/       Backend registry and emission driver
//	│   └── golang/ Go source backend
//	├── errors/     Structured errors with phase and kind
//	└── cmd/witbind Command-line generator and inspector
//
// # Quick Start
//
// Generate Go bindings from an interface document:
//
//	iface, err := model.LoadDocument(f)
//	if err != nil {
//		return err
//	}
//	files, err := emit.Generate(iface, emit.Config{Target: "go"})
//
// Call a module export directly through the plans:
//
//	rt, err := engine.NewRuntime(nil)
//	if err != nil {
//		return err
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.Instantiate(ctx, wasm, iface, nil)
//	if err != nil {
//		return err
//	}
//	defer inst.Close(ctx)
//
//	sum, err := inst.Call(ctx, "add", uint32(2), uint32(3))
//
// # Memory contract
//
// All multi-byte values are little-endian. Offsets and lengths are 32-bit.
// Memory the guest hands back through a result belongs to the guest until
// its post-return function runs.
package witbind
