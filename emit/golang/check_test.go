package golang

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/emit"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

func renderInterface(t *testing.T) *model.Interface {
	t.Helper()
	iface := model.NewInterface("render")
	lang, err := iface.AddType("lang", model.Enum("js", "rust", "go"))
	mustAdd(t, err)
	pairs := model.List(model.Tuple(model.String(), model.String()))
	mustAdd(t, iface.AddExport(&model.Function{
		Name: "render",
		Params: []model.Param{
			{Name: "lang", Type: lang},
			{Name: "template", Type: model.String()},
			{Name: "strict", Type: model.Bool()},
		},
		Result: model.Result(pairs, model.String()),
	}))
	return iface
}

// typeCheck compiles src as a package of its own. The file is placed in the
// test's directory so imports resolve through this module.
func typeCheck(t *testing.T, src string) {
	t.Helper()
	if testing.Short() {
		t.Skip("type-checks wazero from source")
	}
	dir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filepath.Join(dir, "bindings_gen.go"), src, parser.AllErrors)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var errs []string
	conf := types.Config{
		Importer: importer.ForCompiler(fset, "source", nil),
		Error:    func(err error) { errs = append(errs, err.Error()) },
	}
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, nil)
	for _, e := range errs {
		if strings.Contains(e, "could not import") {
			t.Skipf("dependencies unavailable: %s", e)
		}
	}
	if len(errs) > 0 {
		t.Fatalf("generated code does not type-check:\n%s\n\n%s", strings.Join(errs, "\n"), numbered(src))
	}
}

func numbered(src string) string {
	lines := strings.Split(src, "\n")
	for k := range lines {
		lines[k] = fmt.Sprintf("%4d %s", k+1, lines[k])
	}
	return strings.Join(lines, "\n")
}

func TestGeneratedCodeTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		iface func(*testing.T) *model.Interface
		cfg   emit.Config
	}{
		{"demo", demoInterface, emit.Config{}},
		{"demo with stubs", demoInterface, emit.Config{Stubs: true}},
		{"render", renderInterface, emit.Config{}},
		{"minimal", calcInterface, emit.Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typeCheck(t, generate(t, tt.iface(t), tt.cfg))
		})
	}
}

var memOp = regexp.MustCompile(`i\.alloc\(ctx, (\d+), (\d+)\)` +
	`|i\.allocList\(ctx, len\(\w+\), (\d+), (\d+)\)` +
	`|i\.store\(\w+, (\d+), (\d+),` +
	`|i\.load\(\w+, (\d+), (\d+)\)` +
	`|i\.checkList\(\w+, \w+, (\d+)\)` +
	`|i\.(lowerString|liftString|lowerBytes|liftBytes)\(`)

// generatedOps lists the memory operations of a generated function body in
// source order.
func generatedOps(body string) []string {
	var ops []string
	for _, m := range memOp.FindAllStringSubmatch(body, -1) {
		switch {
		case m[1] != "":
			ops = append(ops, "alloc "+m[1]+" "+m[2])
		case m[3] != "":
			ops = append(ops, "list-lower "+m[3]+" "+m[4])
		case m[5] != "":
			ops = append(ops, "store "+m[5]+" "+m[6])
		case m[7] != "":
			ops = append(ops, "load "+m[7]+" "+m[8])
		case m[9] != "":
			ops = append(ops, "list-lift "+m[9])
		default:
			ops = append(ops, map[string]string{
				"lowerString": "string-lower",
				"liftString":  "string-lift",
				"lowerBytes":  "bytes-lower",
				"liftBytes":   "bytes-lift",
			}[m[10]])
		}
	}
	return ops
}

// planOps lists the memory operations of blk in execution order. Byte
// lists are copied in one step, so their element blocks are not entered.
func planOps(blk *abi.Block) []string {
	var ops []string
	for _, in := range blk.Body {
		bytes := (in.Op == abi.OpListLower || in.Op == abi.OpListLift) && in.Type.Elem.Kind == model.KindU8
		switch in.Op {
		case abi.OpAlloc:
			ops = append(ops, fmt.Sprintf("alloc %d %d", in.Size, in.Align))
		case abi.OpStore:
			ops = append(ops, fmt.Sprintf("store %d %d", in.Offset, in.Size))
		case abi.OpLoad:
			ops = append(ops, fmt.Sprintf("load %d %d", in.Offset, in.Size))
		case abi.OpStringLower:
			ops = append(ops, "string-lower")
		case abi.OpStringLift:
			ops = append(ops, "string-lift")
		case abi.OpListLower:
			if bytes {
				ops = append(ops, "bytes-lower")
			} else {
				ops = append(ops, fmt.Sprintf("list-lower %d %d", in.Size, in.Align))
			}
		case abi.OpListLift:
			if bytes {
				ops = append(ops, "bytes-lift")
			} else {
				ops = append(ops, fmt.Sprintf("list-lift %d", in.Size))
			}
		}
		if bytes {
			continue
		}
		for _, sub := range in.Blocks {
			ops = append(ops, planOps(sub)...)
		}
	}
	return ops
}

// funcBody cuts the top-level function whose declaration starts with decl.
func funcBody(t *testing.T, src, decl string) string {
	t.Helper()
	start := strings.Index(src, decl)
	if start < 0 {
		t.Fatalf("no %q in generated source", decl)
	}
	end := strings.Index(src[start:], "\n}\n")
	if end < 0 {
		t.Fatalf("unterminated %q", decl)
	}
	return src[start : start+end]
}

func TestGeneratedMemoryLayoutMatchesPlans(t *testing.T) {
	demo := demoInterface(t)
	render := renderInterface(t)
	gen := abi.NewGenerator(layout.New())

	tests := []struct {
		name  string
		iface *model.Interface
		decl  string
		plan  func() *abi.Plan
	}{
		{"render", render, "func (i *Instance) Render(", func() *abi.Plan { return gen.Export(render.Export("render")) }},
		{"paint", demo, "func (i *Instance) Paint(", func() *abi.Plan { return gen.Export(demo.Export("paint")) }},
		{"sum", demo, "func (i *Instance) Sum(", func() *abi.Plan { return gen.Export(demo.Export("sum")) }},
		{"digest", demo, "func (i *Instance) Digest(", func() *abi.Plan { return gen.Export(demo.Export("digest")) }},
		{"close", demo, "func (i *Instance) Close_(", func() *abi.Plan { return gen.Export(demo.Export("close")) }},
		{"inspect", demo, "func (i *Instance) importInspect(", func() *abi.Plan { return gen.Import(demo.Import("inspect")) }},
		{"hostname", demo, "func (i *Instance) importHostname(", func() *abi.Plan { return gen.Import(demo.Import("hostname")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := generate(t, tt.iface, emit.Config{})
			got := generatedOps(funcBody(t, src, tt.decl))
			want := planOps(tt.plan().Body)
			if len(want) == 0 {
				t.Fatal("plan touches no memory")
			}
			if strings.Join(got, "; ") != strings.Join(want, "; ") {
				t.Fatalf("memory operations differ\n got: %v\nwant: %v", got, want)
			}
		})
	}
}

func TestGeneratedOwnershipMoves(t *testing.T) {
	src := generate(t, demoInterface(t), emit.Config{})

	consume := funcBody(t, src, "func (i *Instance) Consume(")
	for _, want := range []string{
		"var tx transfer",
		"defer tx.rollback()",
		"tx.add(move{undo: func() { _, _ = i.takeBlob(",
	} {
		if !strings.Contains(consume, want) {
			t.Errorf("Consume lacks %q", want)
		}
	}
	commit := strings.Index(consume, "tx.commit()")
	call := strings.Index(consume, `i.call(ctx, "consume"`)
	if commit < 0 || call < 0 || commit > call {
		t.Errorf("ownership must be committed right before the call:\n%s", consume)
	}

	open := funcBody(t, src, "func (i *Instance) importOpen(")
	if c, s := strings.Index(open, "tx.commit()"), strings.Index(open, "stack[0] ="); c < 0 || s < 0 || c > s {
		t.Errorf("import result must commit before it is returned:\n%s", open)
	}

	if name := funcBody(t, src, "func (i *Instance) Name("); strings.Contains(name, "transfer") {
		t.Errorf("function without owned handles declares a transfer:\n%s", name)
	}
	if !strings.Contains(src, "func (r *Counter) move(tx *transfer) (uint64, error) {") {
		t.Error("exported resource lacks its move method")
	}
}
