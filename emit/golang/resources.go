package golang

import (
	"github.com/wippyai/witbind/emit"
)

// EmitResourceTable renders the handle table of r. Exported resources get
// an owning wrapper type whose last drop runs the module's destructor;
// host resources keep their values in the table directly.
func (b *Backend) EmitResourceTable(w *emit.Writer, r *emit.Resource) error {
	name := exported(r.Name)
	table := local(r.Name) + "Table"

	if r.Exported {
		b.fields.Line("%s handleTable[uint32]", table)
		b.guestResource(w, r, name, table)
		b.register(r.NewImport(), "flatI32", "flatI32", func(w *emit.Writer) {
			w.Line("stack[0] = uint64(inst.%s.insert(uint32(stack[0])))", table)
		})
		b.register(r.RepImport(), "flatI32", "flatI32", func(w *emit.Writer) {
			w.Line("rep, err := inst.%s.get(uint32(stack[0]))", table)
			w.Open("if err != nil {")
			w.Line("panic(err)")
			w.Close("}")
			w.Line("stack[0] = uint64(rep)")
		})
		b.closes.Open("for _, rep := range i.%s.drain() {", table)
		b.closes.Line("errs = append(errs, i.destroy(ctx, %q, rep))", r.DtorExport())
		b.closes.Close("}")
	} else {
		b.fields.Line("%s handleTable[any]", table)
		b.hostResource(w, r, name, table)
		b.closes.Open("for _, v := range i.%s.drain() {", table)
		b.closes.Line("dropValue(v)")
		b.closes.Close("}")
	}
	b.register(r.DropImport(), "flatI32", "nil", func(w *emit.Writer) {
		w.Open("if err := inst.drop%s(uint32(stack[0])); err != nil {", name)
		w.Line("panic(err)")
		w.Close("}")
	})
	return nil
}

func (b *Backend) guestResource(w *emit.Writer, r *emit.Resource, name, table string) {
	w.Line("// %s is a handle to a %s living in the module. Owned handles give", name, r.Name)
	w.Line("// their reference back on Drop or when they become unreachable.")
	w.Open("type %s struct {", name)
	w.Line("inst    *Instance")
	w.Line("ref     *handleRef")
	w.Line("owned   bool")
	w.Line("cleanup runtime.Cleanup")
	w.Close("}")
	w.Blank()

	w.Open("func (i *Instance) adopt%s(h uint32) (*%s, error) {", name, name)
	w.Open("if _, err := i.%s.get(h); err != nil {", table)
	w.Line("return nil, err")
	w.Close("}")
	w.Line("r := &%s{inst: i, ref: &handleRef{handle: h}, owned: true}", name)
	w.Line("r.cleanup = runtime.AddCleanup(r, i.release%s, r.ref)", name)
	w.Line("return r, nil")
	w.Close("}")
	w.Blank()

	w.Open("func (i *Instance) release%s(ref *handleRef) {", name)
	w.Open("if ref.done.CompareAndSwap(false, true) {")
	w.Line("_ = i.drop%s(ref.handle)", name)
	w.Close("}")
	w.Close("}")
	w.Blank()

	w.Open("func (i *Instance) borrow%s(h uint32) (*%s, error) {", name, name)
	w.Open("if _, err := i.%s.get(h); err != nil {", table)
	w.Line("return nil, err")
	w.Close("}")
	w.Line("return &%s{inst: i, ref: &handleRef{handle: h}}, nil", name)
	w.Close("}")
	w.Blank()

	w.Open("func (i *Instance) drop%s(h uint32) error {", name)
	w.Line("rep, last, err := i.%s.drop(h)", table)
	w.Open("if err != nil || !last {")
	w.Line("return err")
	w.Close("}")
	w.Line("return i.destroy(context.Background(), %q, rep)", r.DtorExport())
	w.Close("}")
	w.Blank()

	w.Line("// Handle returns the table index of the handle.")
	w.Line("func (r *%s) Handle() uint32 { return r.ref.handle }", name)
	w.Blank()

	w.Line("// Drop gives back an owned handle. Borrowed handles are left alone and")
	w.Line("// repeated calls do nothing.")
	w.Open("func (r *%s) Drop() error {", name)
	w.Open("if r == nil || !r.owned || !r.ref.done.CompareAndSwap(false, true) {")
	w.Line("return nil")
	w.Close("}")
	w.Line("r.cleanup.Stop()")
	w.Line("return r.inst.drop%s(r.ref.handle)", name)
	w.Close("}")
	w.Blank()

	w.Line("// move hands the reference to the call collecting tx once it commits.")
	w.Open("func (r *%s) move(tx *transfer) (uint64, error) {", name)
	w.Open("if r == nil || !r.owned {")
	w.Line(`return 0, fmt.Errorf("%%w: %s handle is not owned", ErrInvalidHandle)`, r.Name)
	w.Close("}")
	w.Open("if r.ref.done.Load() || !tx.claim(r.ref) {")
	w.Line(`return 0, fmt.Errorf("%%w: %s %%d already released", ErrInvalidHandle, r.ref.handle)`, r.Name)
	w.Close("}")
	w.Open("tx.add(move{")
	w.Line("ref: r.ref,")
	w.Open("commit: func() error {")
	w.Open("if !r.ref.done.CompareAndSwap(false, true) {")
	w.Line(`return fmt.Errorf("%%w: %s %%d already released", ErrInvalidHandle, r.ref.handle)`, r.Name)
	w.Close("}")
	w.Line("r.cleanup.Stop()")
	w.Line("return nil")
	w.Close("},")
	w.Line("undo: func() { _ = r.inst.drop%s(r.ref.handle) },", name)
	w.Close("})")
	w.Line("return uint64(r.ref.handle), nil")
	w.Close("}")
	w.Blank()

	w.Open("func (r *%s) view() (uint64, error) {", name)
	w.Open("if r == nil || r.ref.done.Load() {")
	w.Line(`return 0, fmt.Errorf("%%w: %s handle is gone", ErrInvalidHandle)`, r.Name)
	w.Close("}")
	w.Line("return uint64(r.ref.handle), nil")
	w.Close("}")
	w.Blank()
}

func (b *Backend) hostResource(w *emit.Writer, r *emit.Resource, name, table string) {
	w.Open("func (i *Instance) drop%s(h uint32) error {", name)
	w.Line("v, last, err := i.%s.drop(h)", table)
	w.Open("if err != nil || !last {")
	w.Line("return err")
	w.Close("}")
	w.Line("dropValue(v)")
	w.Line("return nil")
	w.Close("}")
	w.Blank()

	w.Line("// take%s removes the entry for h and hands its value to the host.", name)
	w.Open("func (i *Instance) take%s(h uint32) (any, error) {", name)
	w.Line("v, _, err := i.%s.drop(h)", table)
	w.Line("return v, err")
	w.Close("}")
	w.Blank()
}

// register adds a host function to the module built at instantiation.
func (b *Backend) register(export, params, results string, body func(w *emit.Writer)) {
	w := b.registrations
	w.Line("host.NewFunctionBuilder().")
	w.Indent()
	w.Open("WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {")
	body(w)
	w.Close("}), %s, %s).", params, results)
	w.Line("Export(%q)", export)
	w.Dedent()
}
