package emit

import "slices"

// DefaultTarget is used when Config.Target is empty.
const DefaultTarget = "go"

// Config selects and configures a backend.
type Config struct {
	// Target is the registered backend name.
	Target string

	// Package is the target package or module name. Backends derive one
	// from the interface name when it is empty.
	Package string

	// ExportPrefix is prepended to every core export and import name.
	ExportPrefix string

	// Skip lists functions to leave out, by core name without prefix.
	Skip []string

	// Stubs asks for placeholder implementations of the imports.
	Stubs bool
}

func (c Config) skipped(name string) bool {
	return slices.Contains(c.Skip, name)
}
