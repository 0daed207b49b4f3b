package abi

import (
	"context"
	"reflect"
	"testing"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
)

func renderFunc() *model.Function {
	lang := model.Named("lang", model.Enum("js", "rust", "go"))
	pairs := model.List(model.Tuple(model.String(), model.String()))
	return &model.Function{
		Name: "render",
		Params: []model.Param{
			{Name: "lang", Type: lang},
			{Name: "template", Type: model.String()},
			{Name: "strict", Type: model.Bool()},
		},
		Result: model.Result(pairs, model.String()),
	}
}

// guestString places s in memory the way a module would.
func (e *testEnv) guestString(s string) (uint32, uint32) {
	ptr, _ := e.alloc.Alloc(uint32(len(s)), 1)
	_ = e.mem.Write(ptr, []byte(s))
	return ptr, uint32(len(s))
}

func TestRenderScenario(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		reply func(e *testEnv, ret uint32)
		want  any
	}{
		{
			name: "ok",
			reply: func(e *testEnv, ret uint32) {
				pairs := [][2]string{{"a", "1"}, {"bb", "22"}}
				list, _ := e.alloc.Alloc(uint32(16*len(pairs)), 4)
				for i, p := range pairs {
					base := list + uint32(16*i)
					kp, kl := e.guestString(p[0])
					vp, vl := e.guestString(p[1])
					_ = e.mem.WriteU32(base, kp)
					_ = e.mem.WriteU32(base+4, kl)
					_ = e.mem.WriteU32(base+8, vp)
					_ = e.mem.WriteU32(base+12, vl)
				}
				_ = e.mem.WriteU8(ret, 0)
				_ = e.mem.WriteU32(ret+4, list)
				_ = e.mem.WriteU32(ret+8, uint32(len(pairs)))
			},
			want: Ok([]any{[]any{"a", "1"}, []any{"bb", "22"}}),
		},
		{
			name: "err",
			reply: func(e *testEnv, ret uint32) {
				p, n := e.guestString("unknown tag")
				_ = e.mem.WriteU8(ret, 1)
				_ = e.mem.WriteU32(ret+4, p)
				_ = e.mem.WriteU32(ret+8, n)
			},
			want: Err("unknown tag"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			f := renderFunc()
			plan := e.gen.Export(f)
			if !plan.Sig.ResultSpilled || plan.Sig.ParamsSpilled {
				t.Fatalf("unexpected signature %+v", plan.Sig)
			}

			var ret uint32
			e.callee.exports["render"] = func(args []uint64) ([]uint64, error) {
				if len(args) != 4 {
					t.Fatalf("got %d core args, want 4", len(args))
				}
				if args[0] != 1 {
					t.Errorf("lang discriminant %d, want 1", args[0])
				}
				if args[2] != 3 {
					t.Errorf("template length %d, want 3", args[2])
				}
				if data, _ := e.mem.Read(uint32(args[1]), 3); string(data) != "abc" {
					t.Errorf("template bytes %q", data)
				}
				if args[3] != 1 {
					t.Errorf("strict flag %d, want 1", args[3])
				}
				ret, _ = e.alloc.Alloc(12, 4)
				tt.reply(e, ret)
				return []uint64{uint64(ret)}, nil
			}
			e.callee.exports["cabi_post_render"] = func(args []uint64) ([]uint64, error) {
				if len(args) != 1 || args[0] != uint64(ret) {
					t.Errorf("post-return args %v, want [%d]", args, ret)
				}
				// the module frees here; anything still unread is lost
				for i := range e.mem.data {
					e.mem.data[i] = 0
				}
				return nil, nil
			}

			out, err := e.m.Run(ctx, plan, "rust", "abc", true)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(out[0], tt.want) {
				t.Fatalf("got %#v, want %#v", out[0], tt.want)
			}
			if n := e.callee.count("cabi_post_render"); n != 1 {
				t.Fatalf("post-return ran %d times", n)
			}
		})
	}
}

func TestPostReturnAfterLiftFailure(t *testing.T) {
	e := newTestEnv()
	plan := e.gen.Export(renderFunc())
	e.callee.exports["render"] = func([]uint64) ([]uint64, error) {
		ret, _ := e.alloc.Alloc(12, 4)
		_ = e.mem.WriteU8(ret, 7)
		return []uint64{uint64(ret)}, nil
	}
	e.callee.exports["cabi_post_render"] = func([]uint64) ([]uint64, error) { return nil, nil }

	_, err := e.m.Run(context.Background(), plan, "js", "x", false)
	if !errors.Is(err, errors.ErrInvalidDiscriminant) {
		t.Fatalf("expected invalid discriminant, got %v", err)
	}
	if n := e.callee.count("cabi_post_render"); n != 1 {
		t.Fatalf("post-return ran %d times", n)
	}
}

func TestExportWithoutPostReturn(t *testing.T) {
	e := newTestEnv()
	f := &model.Function{
		Name:   "add",
		Params: []model.Param{{Name: "a", Type: model.U32()}, {Name: "b", Type: model.U32()}},
		Result: model.U32(),
	}
	e.callee.exports["add"] = func(args []uint64) ([]uint64, error) {
		return []uint64{args[0] + args[1]}, nil
	}
	plan := e.gen.Export(f)
	if plan.PostReturn != "" {
		t.Fatalf("unexpected post-return %q", plan.PostReturn)
	}
	out, err := e.m.Run(context.Background(), plan, uint32(2), uint32(40))
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != uint32(42) {
		t.Fatalf("got %v", out[0])
	}
	if len(e.callee.calls) != 1 {
		t.Fatalf("calls %v", e.callee.calls)
	}
}

func TestSpilledParams(t *testing.T) {
	e := newTestEnv()
	params := make([]model.Param, 17)
	args := make([]any, 17)
	for i := range params {
		params[i] = model.Param{Name: "p" + string(rune('a'+i)), Type: model.U32()}
		args[i] = uint32(i + 1)
	}
	f := &model.Function{Name: "sum17", Params: params, Result: model.U32()}

	e.callee.exports["sum17"] = func(core []uint64) ([]uint64, error) {
		if len(core) != 1 {
			t.Fatalf("got %d core args, want a single pointer", len(core))
		}
		var sum uint64
		for i := uint32(0); i < 17; i++ {
			v, _ := e.mem.ReadU32(uint32(core[0]) + 4*i)
			sum += uint64(v)
		}
		return []uint64{sum}, nil
	}

	plan := e.gen.Export(f)
	if !plan.Sig.ParamsSpilled || plan.Sig.ParamArea.Size != 68 {
		t.Fatalf("unexpected signature %+v", plan.Sig)
	}
	out, err := e.m.Run(context.Background(), plan, args...)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != uint32(153) {
		t.Fatalf("got %v, want 153", out[0])
	}
	if len(e.alloc.live) != 1 {
		t.Fatalf("the parameter area belongs to the module after the call, live=%d", len(e.alloc.live))
	}
}

func TestTrapKeepsLoweredMemory(t *testing.T) {
	e := newTestEnv()
	f := &model.Function{Name: "boom", Params: []model.Param{{Name: "s", Type: model.String()}}}
	e.callee.exports["boom"] = func([]uint64) ([]uint64, error) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTrap).Detail("unreachable").Build()
	}
	_, err := e.m.Run(context.Background(), e.gen.Export(f), "payload")
	if kindOf(err) != errors.KindTrap {
		t.Fatalf("expected trap, got %v", err)
	}
	if e.alloc.freed != 0 {
		t.Fatal("memory handed to the module must not be freed by the host")
	}
}

func TestImportPlan(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv()
	f := &model.Function{
		Name:   "greet",
		Params: []model.Param{{Name: "name", Type: model.String()}},
		Result: model.String(),
	}
	e.callee.host = func(fn *model.Function, args []any) (any, error) {
		return "hello " + args[0].(string), nil
	}

	plan := e.gen.Import(f)
	if len(plan.Sig.Params) != 3 || len(plan.Sig.Results) != 0 {
		t.Fatalf("unexpected signature %+v", plan.Sig)
	}

	ptr, n := e.guestString("bob")
	ret, _ := e.alloc.Alloc(8, 4)
	out, err := e.m.Run(ctx, plan, uint64(ptr), uint64(n), uint64(ret))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("import returned %v", out)
	}
	sp, _ := e.mem.ReadU32(ret)
	sl, _ := e.mem.ReadU32(ret + 4)
	data, _ := e.mem.Read(sp, sl)
	if string(data) != "hello bob" {
		t.Fatalf("got %q", data)
	}
}

func TestImportFlatResult(t *testing.T) {
	e := newTestEnv()
	f := &model.Function{
		Name:   "pick",
		Params: []model.Param{{Name: "v", Type: model.Option(model.U8())}},
		Result: model.U32(),
	}
	e.callee.host = func(fn *model.Function, args []any) (any, error) {
		if args[0] == nil {
			return uint32(0), nil
		}
		return uint32(args[0].(uint8)) * 2, nil
	}
	out, err := e.m.Run(context.Background(), e.gen.Import(f), uint64(1), uint64(21))
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != uint64(42) {
		t.Fatalf("got %v", out)
	}
}

func consumeFunc(blob *model.Resource) *model.Function {
	return &model.Function{
		Name: "consume",
		Params: []model.Param{
			{Name: "b", Type: model.Own(blob)},
			{Name: "s", Type: model.String()},
		},
	}
}

func TestOwnedTransferAfterFailedLowering(t *testing.T) {
	ctx := context.Background()
	blob := &model.Resource{Name: "blob"}

	destroyed := 0
	e := newTestEnv()
	tbl := e.m.Env().Resources.Define("blob", func(any) error {
		destroyed++
		return nil
	})
	e.callee.exports["consume"] = func([]uint64) ([]uint64, error) { return nil, nil }
	plan := e.gen.Export(consumeFunc(blob))

	t.Run("owner stays armed", func(t *testing.T) {
		o, err := tbl.Own("file")
		if err != nil {
			t.Fatal(err)
		}
		_, err = e.m.Run(ctx, plan, o, "bad\xff")
		if !errors.Is(err, errors.ErrInvalidUTF8) {
			t.Fatalf("expected invalid utf-8, got %v", err)
		}
		if n := e.callee.count("consume"); n != 0 {
			t.Fatalf("consume called %d times", n)
		}
		if o.Dropped() {
			t.Fatal("owner lost its reference although the call never happened")
		}
		if err := o.Drop(); err != nil {
			t.Fatal(err)
		}
		if tbl.Len() != 0 || destroyed != 1 {
			t.Fatalf("len %d, destroyed %d; want 0, 1", tbl.Len(), destroyed)
		}
	})

	t.Run("fresh value leaves the table", func(t *testing.T) {
		destroyed = 0
		_, err := e.m.Run(ctx, plan, "file", "bad\xff")
		if !errors.Is(err, errors.ErrInvalidUTF8) {
			t.Fatalf("expected invalid utf-8, got %v", err)
		}
		if tbl.Len() != 0 {
			t.Fatalf("table holds %d entries", tbl.Len())
		}
		if destroyed != 0 {
			t.Fatal("destructor ran for a value the caller still holds")
		}
	})

	t.Run("successful call transfers", func(t *testing.T) {
		o, err := tbl.Own("file")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.m.Run(ctx, plan, o, "ok"); err != nil {
			t.Fatal(err)
		}
		if !o.Dropped() {
			t.Fatal("owner should have handed its reference over")
		}
		if refs, _ := tbl.Refs(o.Handle()); refs != 1 {
			t.Fatalf("refs %d, want 1", refs)
		}
		_ = tbl.Drop(o.Handle())
	})
}

func TestOwnedPassedTwice(t *testing.T) {
	ctx := context.Background()
	blob := &model.Resource{Name: "blob"}
	f := &model.Function{
		Name: "pair",
		Params: []model.Param{
			{Name: "a", Type: model.Own(blob)},
			{Name: "b", Type: model.Own(blob)},
		},
	}

	e := newTestEnv()
	tbl := e.m.Env().Resources.Table("blob")
	e.callee.exports["pair"] = func([]uint64) ([]uint64, error) { return nil, nil }

	o, _ := tbl.Own("x")
	_, err := e.m.Run(ctx, e.gen.Export(f), o, o)
	if !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("expected invalid handle, got %v", err)
	}
	if o.Dropped() || e.callee.count("pair") != 0 {
		t.Fatal("failed call must leave the owner alone")
	}
	_ = o.Drop()
}
