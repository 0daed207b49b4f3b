package model

// Resource is a named opaque entity. Instances cross the boundary only as
// handles into a resource table.
type Resource struct {
	Name string
}

// DtorExport is the module export that releases an instance representation.
func (r *Resource) DtorExport() string { return "[dtor]" + r.Name }

// NewImport is the intrinsic a module calls to register a representation.
func (r *Resource) NewImport() string { return "[resource-new]" + r.Name }

// RepImport is the intrinsic a module calls to resolve a handle to its representation.
func (r *Resource) RepImport() string { return "[resource-rep]" + r.Name }

// DropImport is the intrinsic a module calls to drop a handle.
func (r *Resource) DropImport() string { return "[resource-drop]" + r.Name }

// FuncKind distinguishes free functions from resource members.
type FuncKind uint8

const (
	FuncFreestanding FuncKind = iota
	FuncMethod
	FuncStatic
	FuncConstructor
)

func (k FuncKind) String() string {
	switch k {
	case FuncMethod:
		return "method"
	case FuncStatic:
		return "static"
	case FuncConstructor:
		return "constructor"
	}
	return "freestanding"
}

// Param is a named function parameter.
type Param struct {
	Name string
	Type *Type
}

// Function is a typed entry point crossing the boundary.
type Function struct {
	Name     string
	Kind     FuncKind
	Resource *Resource // set for methods, statics and constructors
	Params   []Param
	Result   *Type // nil when the function returns nothing
}

// ExportName is the core export or import name of f, with an optional prefix.
func (f *Function) ExportName(prefix string) string {
	var name string
	switch f.Kind {
	case FuncMethod:
		name = "[method]" + f.Resource.Name + "." + f.Name
	case FuncStatic:
		name = "[static]" + f.Resource.Name + "." + f.Name
	case FuncConstructor:
		name = "[constructor]" + f.Resource.Name
	default:
		name = f.Name
	}
	return prefix + name
}

// PostReturnName is the post-return export paired with an export name.
func PostReturnName(export string) string {
	return "cabi_post_" + export
}

// ParamTypes returns the parameter types in order.
func (f *Function) ParamTypes() []*Type {
	out := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		out[i] = p.Type
	}
	return out
}

// Types returns every type mentioned directly by f.
func (f *Function) Types() []*Type {
	ts := f.ParamTypes()
	if f.Result != nil {
		ts = append(ts, f.Result)
	}
	return ts
}
