package engine

import "strings"

// Allocator exports, in lookup order. Modules either export the two-argument
// alloc or the four-argument cabi_realloc; free is optional.
const (
	simpleAlloc = "alloc"
	CabiRealloc = "cabi_realloc"
	simpleFree  = "free"
	CabiFree    = "cabi_free"
)

// Resource intrinsic prefixes as they appear in core import names.
const (
	prefixResourceNew  = "[resource-new]"
	prefixResourceRep  = "[resource-rep]"
	prefixResourceDrop = "[resource-drop]"
)

type intrinsic uint8

const (
	intrinsicNone intrinsic = iota
	intrinsicNew
	intrinsicRep
	intrinsicDrop
)

// parseIntrinsic splits a resource intrinsic import name into its kind and
// resource name.
//
//	"[resource-new]counter"  -> intrinsicNew, "counter"
//	"[resource-drop]blob"    -> intrinsicDrop, "blob"
//	"greet"                  -> intrinsicNone, ""
func parseIntrinsic(name string) (intrinsic, string) {
	switch {
	case strings.HasPrefix(name, prefixResourceNew):
		return intrinsicNew, name[len(prefixResourceNew):]
	case strings.HasPrefix(name, prefixResourceRep):
		return intrinsicRep, name[len(prefixResourceRep):]
	case strings.HasPrefix(name, prefixResourceDrop):
		return intrinsicDrop, name[len(prefixResourceDrop):]
	}
	return intrinsicNone, ""
}
