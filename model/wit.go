package model

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/witbind/errors"
)

// WITConverter translates wit types into model types. Type definitions are
// memoized by pointer so shared definitions stay shared; resources are
// resolved against (and added to) the target interface.
type WITConverter struct {
	iface *Interface
	memo  map[*wit.TypeDef]*Type
}

// NewWITConverter creates a converter resolving resources in iface.
func NewWITConverter(iface *Interface) *WITConverter {
	return &WITConverter{iface: iface, memo: make(map[*wit.TypeDef]*Type)}
}

// FromWIT converts a single wit type, adding any referenced resources to iface.
func FromWIT(iface *Interface, t wit.Type) (*Type, error) {
	return NewWITConverter(iface).Convert(t)
}

// Convert translates t.
func (c *WITConverter) Convert(t wit.Type) (*Type, error) {
	switch v := t.(type) {
	case wit.Bool:
		return Bool(), nil
	case wit.U8:
		return U8(), nil
	case wit.S8:
		return S8(), nil
	case wit.U16:
		return U16(), nil
	case wit.S16:
		return S16(), nil
	case wit.U32:
		return U32(), nil
	case wit.S32:
		return S32(), nil
	case wit.U64:
		return U64(), nil
	case wit.S64:
		return S64(), nil
	case wit.F32:
		return F32(), nil
	case wit.F64:
		return F64(), nil
	case wit.Char:
		return Char(), nil
	case wit.String:
		return String(), nil
	case *wit.TypeDef:
		return c.typeDef(v)
	case nil:
		return nil, nil
	}
	return nil, errors.Unsupported(errors.PhaseModel, "wit type "+typeName(t))
}

func (c *WITConverter) typeDef(td *wit.TypeDef) (*Type, error) {
	if t, ok := c.memo[td]; ok {
		if t == nil {
			return nil, errors.CyclicType([]string{witName(td)})
		}
		return t, nil
	}
	c.memo[td] = nil

	t, err := c.kind(td)
	if err != nil {
		delete(c.memo, td)
		return nil, err
	}
	if td.Name != nil && t.Kind.NeedsName() && t.Name == "" {
		t.Name = *td.Name
	}
	c.memo[td] = t
	return t, nil
}

func (c *WITConverter) kind(td *wit.TypeDef) (*Type, error) {
	switch k := td.Kind.(type) {
	case *wit.Record:
		fields := make([]Field, len(k.Fields))
		for i, f := range k.Fields {
			ft, err := c.Convert(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return Record(fields...), nil

	case *wit.Variant:
		cases := make([]Case, len(k.Cases))
		for i, vc := range k.Cases {
			ct, err := c.Convert(vc.Type)
			if err != nil {
				return nil, err
			}
			cases[i] = Case{Name: vc.Name, Type: ct}
		}
		return Variant(cases...), nil

	case *wit.Enum:
		names := make([]string, len(k.Cases))
		for i, ec := range k.Cases {
			names[i] = ec.Name
		}
		return Enum(names...), nil

	case *wit.Flags:
		names := make([]string, len(k.Flags))
		for i, f := range k.Flags {
			names[i] = f.Name
		}
		return Flags(names...), nil

	case *wit.List:
		elem, err := c.Convert(k.Type)
		if err != nil {
			return nil, err
		}
		return List(elem), nil

	case *wit.Option:
		elem, err := c.Convert(k.Type)
		if err != nil {
			return nil, err
		}
		return Option(elem), nil

	case *wit.Result:
		ok, err := c.Convert(k.OK)
		if err != nil {
			return nil, err
		}
		e, err := c.Convert(k.Err)
		if err != nil {
			return nil, err
		}
		return Result(ok, e), nil

	case *wit.Tuple:
		elems := make([]*Type, len(k.Types))
		for i, et := range k.Types {
			t, err := c.Convert(et)
			if err != nil {
				return nil, err
			}
			elems[i] = t
		}
		return Tuple(elems...), nil

	case *wit.Own:
		r, err := c.resource(k.Type)
		if err != nil {
			return nil, err
		}
		return Own(r), nil

	case *wit.Borrow:
		r, err := c.resource(k.Type)
		if err != nil {
			return nil, err
		}
		return Borrow(r), nil

	case wit.Type:
		// type alias
		return c.Convert(k)
	}
	return nil, errors.Unsupported(errors.PhaseModel, "wit type definition "+witName(td))
}

func (c *WITConverter) resource(td *wit.TypeDef) (*Resource, error) {
	if td == nil || td.Name == nil {
		return nil, errors.InvalidInput(errors.PhaseModel, "handle refers to an anonymous resource")
	}
	name := *td.Name
	if r := c.iface.Resource(name); r != nil {
		return r, nil
	}
	return c.iface.AddResource(name)
}

func witName(td *wit.TypeDef) string {
	if td.Name != nil {
		return *td.Name
	}
	return "<anonymous>"
}

func typeName(t wit.Type) string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", t)
}
