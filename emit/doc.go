// Package emit turns an interface into target-language bindings.
//
// A Backend receives the interface types, its resources and one plan per
// function from package abi, and renders them in its own syntax. Every
// ABI decision is already made by the plans; a backend only chooses how
// each plan instruction is spelled. Backends register themselves by target
// name and are selected with Config.Target:
//
//	files, err := emit.Generate(iface, emit.Config{Target: "go", Package: "render"})
package emit
