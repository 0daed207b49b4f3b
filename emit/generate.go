package emit

import (
	"fmt"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

// Unit is everything a backend renders in one run.
type Unit struct {
	Interface *model.Interface
	Config    Config
	Plans     *abi.Generator

	// Resources, Exports and Imports are in declaration order with skipped
	// functions removed.
	Resources []*Resource
	Exports   []*model.Function
	Imports   []*model.Function

	// W receives types, resource tables and functions in that order.
	W *Writer
}

// Layouts returns the layout engine the plans are built from.
func (u *Unit) Layouts() *layout.Engine { return u.Plans.Layouts() }

// NewUnit prepares iface for rendering with cfg.
func NewUnit(iface *model.Interface, cfg Config) *Unit {
	u := &Unit{
		Interface: iface,
		Config:    cfg,
		Plans:     abi.NewGenerator(layout.New(), abi.WithExportPrefix(cfg.ExportPrefix)),
		W:         NewWriter(),
	}
	exported := make(map[*model.Resource]bool)
	for _, f := range iface.Exports() {
		if f.Resource != nil {
			exported[f.Resource] = true
		}
		if !cfg.skipped(f.ExportName("")) {
			u.Exports = append(u.Exports, f)
		}
	}
	for _, f := range iface.Imports() {
		if !cfg.skipped(f.ExportName("")) {
			u.Imports = append(u.Imports, f)
		}
	}
	for _, r := range iface.Resources() {
		u.Resources = append(u.Resources, &Resource{Resource: r, Exported: exported[r]})
	}
	return u
}

// Generate renders iface with the backend selected by cfg.Target.
func Generate(iface *model.Interface, cfg Config) ([]File, error) {
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	factory, ok := Lookup(cfg.Target)
	if !ok {
		return nil, errors.NotFound(errors.PhaseEmit, "target", cfg.Target)
	}
	return Run(factory(), NewUnit(iface, cfg))
}

// Run drives b over u: types in dependency order, resource tables, then
// every export and import plan.
func Run(b Backend, u *Unit) ([]File, error) {
	if err := b.Begin(u); err != nil {
		return nil, err
	}
	for _, t := range u.Interface.Types() {
		if err := b.EmitType(u.W, t); err != nil {
			return nil, wrap(err, "type "+t.String())
		}
	}
	for _, r := range u.Resources {
		if err := b.EmitResourceTable(u.W, r); err != nil {
			return nil, wrap(err, "resource "+r.Name)
		}
	}
	for _, f := range u.Exports {
		if err := emitFunc(b, u, u.Plans.Export(f), true); err != nil {
			return nil, wrap(err, "export "+f.ExportName(""))
		}
	}
	for _, f := range u.Imports {
		if err := emitFunc(b, u, u.Plans.Import(f), false); err != nil {
			return nil, wrap(err, "import "+f.ExportName(""))
		}
	}
	return b.End(u)
}

func emitFunc(b Backend, u *Unit, p *abi.Plan, export bool) error {
	before, call, after, err := Split(p)
	if err != nil {
		return err
	}
	f, err := b.BeginFunc(u.W, p)
	if err != nil {
		return err
	}
	f.Export = export

	if export {
		if err := b.EmitLowering(f, before); err != nil {
			return err
		}
		if err := b.EmitCall(f, call); err != nil {
			return err
		}
		if call.PostReturn != "" {
			if err := b.EmitPostReturn(f, call); err != nil {
				return err
			}
		}
		if err := b.EmitLifting(f, after); err != nil {
			return err
		}
	} else {
		if err := b.EmitLifting(f, before); err != nil {
			return err
		}
		if err := b.EmitCall(f, call); err != nil {
			return err
		}
		if err := b.EmitLowering(f, after); err != nil {
			return err
		}
	}
	return b.EndFunc(f)
}

// Split divides the top level of a function plan at its boundary call.
func Split(p *abi.Plan) (before []*abi.Instr, call *abi.Instr, after []*abi.Instr, err error) {
	want := abi.OpCallWasm
	if p.Kind == abi.PlanImport {
		want = abi.OpCallHost
	} else if p.Kind != abi.PlanExport {
		return nil, nil, nil, errors.InvalidInput(errors.PhaseEmit,
			fmt.Sprintf("%s plan %s has no boundary call", p.Kind, p.Name))
	}
	for i, in := range p.Body.Body {
		if in.Op == want {
			return p.Body.Body[:i], in, p.Body.Body[i+1:], nil
		}
	}
	return nil, nil, nil, errors.InvalidInput(errors.PhaseEmit,
		fmt.Sprintf("plan %s has no %s", p.Name, want))
}

func wrap(err error, what string) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, what)
}
