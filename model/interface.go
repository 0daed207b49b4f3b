package model

import (
	"fmt"

	"github.com/wippyai/witbind/errors"
)

// Interface is a named set of resources, types and functions. Exports are
// implemented by the module; imports are implemented by the host.
//
// Registration is all-or-nothing: a failed Add leaves the interface unchanged.
type Interface struct {
	Name    string
	Version string

	resources      []*Resource
	resourceByName map[string]*Resource

	types []*Type // dependencies before dependents
	seen  map[*Type]bool
	named map[string]*Type

	exports      []*Function
	exportByName map[string]*Function
	imports      []*Function
	importByName map[string]*Function
}

// NewInterface creates an empty interface.
func NewInterface(name string) *Interface {
	return &Interface{
		Name:           name,
		resourceByName: make(map[string]*Resource),
		seen:           make(map[*Type]bool),
		named:          make(map[string]*Type),
		exportByName:   make(map[string]*Function),
		importByName:   make(map[string]*Function),
	}
}

// AddResource declares a resource type.
func (i *Interface) AddResource(name string) (*Resource, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseModel, "resource name is empty")
	}
	if _, ok := i.resourceByName[name]; ok {
		return nil, errors.DuplicateName("resource", name)
	}
	if _, ok := i.named[name]; ok {
		return nil, errors.DuplicateName("type", name)
	}
	r := &Resource{Name: name}
	i.resources = append(i.resources, r)
	i.resourceByName[name] = r
	return r, nil
}

// AddType registers t under name together with every type reachable from it.
// Shared primitives are copied, so callers must use the returned type.
func (i *Interface) AddType(name string, t *Type) (*Type, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseModel, "type is nil")
	}
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseModel, "type name is empty")
	}
	if _, ok := i.named[name]; ok {
		return nil, errors.DuplicateName("type", name)
	}
	if _, ok := i.resourceByName[name]; ok {
		return nil, errors.DuplicateName("resource", name)
	}
	if t.Name != "" && t.Name != name {
		return nil, errors.InvalidInput(errors.PhaseModel,
			fmt.Sprintf("type is already named %q", t.Name))
	}

	if t.isShared() {
		c := *t
		t = &c
	}

	order, err := i.collect([]*Type{t})
	if err != nil {
		return nil, err
	}

	t.Name = name
	i.commit(order)
	i.named[name] = t
	return t, nil
}

// AddExport registers a function implemented by the module.
func (i *Interface) AddExport(f *Function) error {
	return i.addFunction(f, i.exportByName, &i.exports)
}

// AddImport registers a function implemented by the host.
func (i *Interface) AddImport(f *Function) error {
	return i.addFunction(f, i.importByName, &i.imports)
}

func (i *Interface) addFunction(f *Function, byName map[string]*Function, list *[]*Function) error {
	if f == nil || f.Name == "" {
		return errors.InvalidInput(errors.PhaseModel, "function has no name")
	}
	key := f.ExportName("")
	if _, ok := byName[key]; ok {
		return errors.DuplicateName("function", key)
	}
	if f.Kind != FuncFreestanding {
		if f.Resource == nil || i.resourceByName[f.Resource.Name] != f.Resource {
			return errors.NotFound(errors.PhaseModel, "resource for function", f.Name)
		}
	}

	params := make(map[string]bool, len(f.Params))
	for _, p := range f.Params {
		if p.Type == nil {
			return errors.FieldMissing(errors.PhaseModel, []string{f.Name}, p.Name)
		}
		if params[p.Name] {
			return errors.DuplicateName("parameter", f.Name+"."+p.Name)
		}
		params[p.Name] = true
	}

	order, err := i.collect(f.Types())
	if err != nil {
		return err
	}

	i.commit(order)
	*list = append(*list, f)
	byName[key] = f
	return nil
}

const (
	unvisited uint8 = iota
	visiting
	visited
)

// collect returns the not-yet-registered types reachable from roots in
// dependency order, or the first cycle or validation failure.
func (i *Interface) collect(roots []*Type) ([]*Type, error) {
	state := make(map[*Type]uint8)
	var (
		order []*Type
		stack []*Type
	)

	var visit func(t *Type) error
	visit = func(t *Type) error {
		if i.seen[t] || t.isShared() {
			return nil
		}
		switch state[t] {
		case visited:
			return nil
		case visiting:
			return errors.CyclicType(cyclePath(stack, t))
		}
		if err := i.validate(t); err != nil {
			return err
		}

		state[t] = visiting
		stack = append(stack, t)
		for _, c := range t.Children() {
			if err := visit(c); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[t] = visited
		order = append(order, t)
		return nil
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (i *Interface) commit(order []*Type) {
	for _, t := range order {
		i.seen[t] = true
		i.types = append(i.types, t)
	}
}

func cyclePath(stack []*Type, back *Type) []string {
	start := 0
	for k, t := range stack {
		if t == back {
			start = k
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, t := range stack[start:] {
		path = append(path, label(t))
	}
	return append(path, label(back))
}

func label(t *Type) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

func (i *Interface) validate(t *Type) error {
	path := []string{label(t)}
	switch t.Kind {
	case KindList, KindOption:
		if t.Elem == nil {
			return errors.FieldMissing(errors.PhaseModel, path, "element type")
		}
	case KindRecord:
		if err := uniqueNames(path, "field", len(t.Fields), func(k int) string { return t.Fields[k].Name }); err != nil {
			return err
		}
		for _, f := range t.Fields {
			if f.Type == nil {
				return errors.FieldMissing(errors.PhaseModel, path, f.Name)
			}
		}
	case KindTuple:
		for k, e := range t.Elems {
			if e == nil {
				return errors.FieldMissing(errors.PhaseModel, path, fmt.Sprintf("element %d", k))
			}
		}
	case KindVariant, KindEnum:
		if len(t.Cases) == 0 {
			return errors.InvalidInput(errors.PhaseModel, fmt.Sprintf("%s has no cases", label(t)))
		}
		if err := uniqueNames(path, "case", len(t.Cases), func(k int) string { return t.Cases[k].Name }); err != nil {
			return err
		}
	case KindFlags:
		if err := uniqueNames(path, "flag", len(t.Flags), func(k int) string { return t.Flags[k] }); err != nil {
			return err
		}
	case KindOwn, KindBorrow:
		if t.Resource == nil || i.resourceByName[t.Resource.Name] != t.Resource {
			name := "<nil>"
			if t.Resource != nil {
				name = t.Resource.Name
			}
			return errors.NotFound(errors.PhaseModel, "resource", name)
		}
	}
	return nil
}

func uniqueNames(path []string, what string, n int, name func(int) string) error {
	seen := make(map[string]bool, n)
	for k := 0; k < n; k++ {
		s := name(k)
		if s == "" {
			return errors.InvalidInput(errors.PhaseModel, fmt.Sprintf("%s %d of %s has no name", what, k, path[0]))
		}
		if seen[s] {
			return errors.DuplicateName(what, path[0]+"."+s)
		}
		seen[s] = true
	}
	return nil
}

// Types returns every registered type, dependencies before dependents.
func (i *Interface) Types() []*Type { return i.types }

// Resources returns resources in declaration order.
func (i *Interface) Resources() []*Resource { return i.resources }

// Exports returns module-implemented functions in declaration order.
func (i *Interface) Exports() []*Function { return i.exports }

// Imports returns host-implemented functions in declaration order.
func (i *Interface) Imports() []*Function { return i.imports }

// Type looks up a named type.
func (i *Interface) Type(name string) *Type { return i.named[name] }

// Resource looks up a resource by name.
func (i *Interface) Resource(name string) *Resource { return i.resourceByName[name] }

// Export looks up an export by its unprefixed export name.
func (i *Interface) Export(name string) *Function { return i.exportByName[name] }

// Import looks up an import by its unprefixed import name.
func (i *Interface) Import(name string) *Function { return i.importByName[name] }

// QualifiedName renders name@version when a version is set.
func (i *Interface) QualifiedName() string {
	if i.Version == "" {
		return i.Name
	}
	return i.Name + "@" + i.Version
}
