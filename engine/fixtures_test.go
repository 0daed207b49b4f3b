package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/internal/wasmbuild"
	"github.com/wippyai/witbind/model"
)

const vi32 = api.ValueTypeI32

func types(ts ...api.ValueType) []api.ValueType { return ts }

// guest is a module under construction with memory and a bump allocator.
type guest struct {
	*wasmbuild.Module
	alloc uint32
}

func newGuest() *guest {
	m := wasmbuild.New()
	return &guest{Module: m}
}

// finish adds memory and the allocator. Imports must all be declared
// before it is called.
func (g *guest) finish() *guest {
	g.Memory(1, "memory")
	heap := g.Global(vi32, true, 4096)

	// alloc(size, align): heap = align_up(heap, align) + size
	f := g.Func(types(vi32, vi32), types(vi32), vi32)
	f.Body().
		GlobalGet(heap).LocalGet(1).I32Add().I32Const(1).I32Sub().
		I32Const(0).LocalGet(1).I32Sub().I32And().
		LocalTee(2).LocalGet(0).I32Add().GlobalSet(heap).
		LocalGet(2)
	g.ExportFunc(simpleAlloc, f)
	g.alloc = f.Index()
	return g
}

func counterInterface() (*model.Interface, error) {
	iface := model.NewInterface("counters")
	r, err := iface.AddResource("counter")
	if err != nil {
		return nil, err
	}
	funcs := []*model.Function{
		{
			Name:     "counter",
			Kind:     model.FuncConstructor,
			Resource: r,
			Params:   []model.Param{{Name: "start", Type: model.U32()}},
			Result:   model.Own(r),
		},
		{
			Name:     "increment",
			Kind:     model.FuncMethod,
			Resource: r,
			Params:   []model.Param{{Name: "self", Type: model.Borrow(r)}},
			Result:   model.U32(),
		},
	}
	for _, f := range funcs {
		if err := iface.AddExport(f); err != nil {
			return nil, err
		}
	}
	return iface, nil
}

// counterGuest keeps each counter in a 4-byte cell of module memory and
// counts destructor calls in the exported global "dtors".
func counterGuest() []byte {
	g := newGuest()
	newFn := g.ImportFunc("counters", "[resource-new]counter", types(vi32), types(vi32))
	repFn := g.ImportFunc("counters", "[resource-rep]counter", types(vi32), types(vi32))
	g.finish()

	dtors := g.Global(vi32, true, 0)
	g.ExportGlobal("dtors", dtors)

	ctor := g.Func(types(vi32), types(vi32), vi32)
	ctor.Body().
		I32Const(4).I32Const(4).Call(g.alloc).LocalTee(1).
		LocalGet(0).I32Store(0).
		LocalGet(1).Call(newFn)
	g.ExportFunc("[constructor]counter", ctor)

	inc := g.Func(types(vi32), types(vi32), vi32, vi32)
	inc.Body().
		LocalGet(0).Call(repFn).LocalSet(1).
		LocalGet(1).
		LocalGet(1).I32Load(0).I32Const(1).I32Add().LocalTee(2).
		I32Store(0).
		LocalGet(2)
	g.ExportFunc("[method]counter.increment", inc)

	dtor := g.Func(types(vi32), nil)
	dtor.Body().GlobalGet(dtors).I32Const(1).I32Add().GlobalSet(dtors)
	g.ExportFunc("[dtor]counter", dtor)

	return g.Encode()
}

func echoInterface() (*model.Interface, error) {
	iface := model.NewInterface("echo")
	err := iface.AddExport(&model.Function{
		Name:   "echo",
		Params: []model.Param{{Name: "msg", Type: model.String()}},
		Result: model.String(),
	})
	if err != nil {
		return nil, err
	}
	err = iface.AddExport(&model.Function{
		Name:   "sum",
		Params: sumParams(),
		Result: model.U32(),
	})
	if err != nil {
		return nil, err
	}
	return iface, nil
}

func sumParams() []model.Param {
	params := make([]model.Param, 17)
	for i := range params {
		params[i] = model.Param{Name: string(rune('a' + i)), Type: model.U32()}
	}
	return params
}

// echoGuest returns its argument through a return area at 0x100 and counts
// post-return calls in the exported global "posts". sum adds seventeen
// u32 values read from the parameter area.
func echoGuest(withPost bool) []byte {
	g := newGuest().finish()

	posts := g.Global(vi32, true, 0)
	g.ExportGlobal("posts", posts)

	echo := g.Func(types(vi32, vi32), types(vi32))
	echo.Body().
		I32Const(0x100).LocalGet(0).I32Store(0).
		I32Const(0x100).LocalGet(1).I32Store(4).
		I32Const(0x100)
	g.ExportFunc("echo", echo)

	if withPost {
		post := g.Func(types(vi32), nil)
		post.Body().GlobalGet(posts).I32Const(1).I32Add().GlobalSet(posts)
		g.ExportFunc("cabi_post_echo", post)
	}

	sum := g.Func(types(vi32), types(vi32))
	body := sum.Body().LocalGet(0).I32Load(0)
	for i := uint32(1); i < 17; i++ {
		body.LocalGet(0).I32Load(4 * i).I32Add()
	}
	g.ExportFunc("sum", sum)

	return g.Encode()
}

func shellInterface() (*model.Interface, error) {
	iface := model.NewInterface("shell")
	imports := []*model.Function{
		{
			Name:   "log",
			Params: []model.Param{{Name: "line", Type: model.String()}},
			Result: model.U32(),
		},
		{
			Name:   "hostname",
			Result: model.String(),
		},
	}
	for _, f := range imports {
		if err := iface.AddImport(f); err != nil {
			return nil, err
		}
	}
	exports := []*model.Function{
		{
			Name:   "run",
			Params: []model.Param{{Name: "n", Type: model.U32()}},
			Result: model.U32(),
		},
		{
			Name:   "hostname-len",
			Result: model.U32(),
		},
		{
			Name:   "crash",
			Result: model.U32(),
		},
	}
	for _, f := range exports {
		if err := iface.AddExport(f); err != nil {
			return nil, err
		}
	}
	return iface, nil
}

// shellGuest logs "hello" and adds the import's result to n. hostname-len
// calls hostname with a return pointer at 0x200 and returns the length.
func shellGuest() []byte {
	g := newGuest()
	logFn := g.ImportFunc("shell", "log", types(vi32, vi32), types(vi32))
	hostFn := g.ImportFunc("shell", "hostname", types(vi32), nil)
	g.finish()
	g.Data(0x40, []byte("hello"))

	run := g.Func(types(vi32), types(vi32))
	run.Body().I32Const(0x40).I32Const(5).Call(logFn).LocalGet(0).I32Add()
	g.ExportFunc("run", run)

	hl := g.Func(nil, types(vi32))
	hl.Body().I32Const(0x200).Call(hostFn).I32Const(0x200).I32Load(4)
	g.ExportFunc("hostname-len", hl)

	crash := g.Func(nil, types(vi32))
	crash.Body().Unreachable()
	g.ExportFunc("crash", crash)

	return g.Encode()
}
