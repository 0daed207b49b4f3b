// Package wasmbuild assembles small core WebAssembly modules in memory.
//
// It covers the subset needed to stand up guest modules for tests and
// fixtures: function imports, one linear memory, globals, exports, active
// data segments and a straight-line instruction builder. It does not
// validate; wazero reports malformed output at compile time.
package wasmbuild
