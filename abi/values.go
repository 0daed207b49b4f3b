package abi

// Host value conventions used by Machine:
//
//	bool, u8..s64, f32, f64  bool, uint8..int64, float32, float64
//	char                     rune
//	string                   string
//	list<u8>                 []byte
//	list<T>                  []any (lowering also accepts any slice)
//	record                   map[string]any
//	tuple                    []any
//	variant                  Variant
//	enum                     string case name (lowering also accepts an index)
//	flags                    uint64 up to 64 flags, []uint32 words above
//	                         (lowering also accepts []string names)
//	option<T>                nil or T; Some wraps T when T is itself an option
//	result<T, E>             Result
//	own<R>                   *resource.Owned
//	borrow<R>                resource.Borrowed

// Variant is a case of a variant type with its optional payload.
type Variant struct {
	Case    string
	Payload any
}

// Some marks a present option value. It is required only when the payload
// is itself an option or nil would be ambiguous.
type Some struct {
	Value any
}

// Result is the host form of result<T, E>.
type Result struct {
	Value any
	IsErr bool
}

// Ok returns a successful result.
func Ok(v any) Result { return Result{Value: v} }

// Err returns a failed result.
func Err(v any) Result { return Result{Value: v, IsErr: true} }
