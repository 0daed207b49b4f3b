// Command witbind generates canonical ABI bindings from an interface
// document and calls the exports of core modules implementing one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/emit"
	_ "github.com/wippyai/witbind/emit/golang"
	"github.com/wippyai/witbind/engine"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
	"github.com/wippyai/witbind/resource"
)

func main() {
	var (
		docFile     = flag.String("doc", "", "Path to the interface document (JSON)")
		target      = flag.String("target", emit.DefaultTarget, "Emission target")
		outDir      = flag.String("out", ".", "Directory to write generated files to")
		pkg         = flag.String("pkg", "", "Package name of the generated code")
		prefix      = flag.String("prefix", "", "Prefix of core export and import names")
		skip        = flag.String("skip", "", "Functions to leave out (comma-separated core names)")
		stubs       = flag.Bool("stubs", false, "Generate placeholder import implementations")
		list        = flag.Bool("list", false, "List targets, or the functions of -doc, and exit")
		planName    = flag.String("plan", "", "Print the plan of an export or import and exit")
		wasmFile    = flag.String("wasm", "", "Core module implementing the interface")
		callName    = flag.String("call", "", "Export of -wasm to call")
		callArgs    = flag.String("args", "", "Arguments for -call as a JSON array")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Log to stderr")
	)
	flag.Parse()

	if *verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(log)
			resource.SetLogger(log)
			defer func() { _ = log.Sync() }()
		}
	}

	if *list && *docFile == "" {
		for _, name := range emit.Targets() {
			fmt.Println(name)
		}
		return
	}

	if *docFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: witbind -doc <iface.json> [-target go] [-out dir] [-pkg name]")
		fmt.Fprintln(os.Stderr, "       witbind -doc <iface.json> -list | -plan <name>")
		fmt.Fprintln(os.Stderr, "       witbind -doc <iface.json> -wasm <module.wasm> -call <name> [-args '[...]']")
		fmt.Fprintln(os.Stderr, "       witbind -doc <iface.json> [-wasm <module.wasm>] -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       witbind -list  (targets)")
		os.Exit(1)
	}

	if err := run(*docFile, *wasmFile, *callName, *callArgs, *planName, *list, *interactive, emit.Config{
		Target:       *target,
		Package:      *pkg,
		ExportPrefix: *prefix,
		Skip:         splitList(*skip),
		Stubs:        *stubs,
	}, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(docFile, wasmFile, callName, callArgs, planName string, listOnly, interactive bool, cfg emit.Config, outDir string) error {
	iface, err := loadInterface(docFile)
	if err != nil {
		return err
	}

	switch {
	case listOnly:
		listFunctions(iface, cfg.ExportPrefix)
		return nil
	case planName != "":
		return printPlan(iface, planName, cfg.ExportPrefix)
	case interactive:
		return runInteractive(iface, wasmFile, cfg.ExportPrefix)
	case callName != "":
		if wasmFile == "" {
			return fmt.Errorf("-call needs -wasm")
		}
		return call(iface, wasmFile, callName, callArgs, cfg.ExportPrefix)
	}
	return generate(iface, cfg, outDir)
}

func loadInterface(path string) (*model.Interface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	defer f.Close()
	return model.LoadDocument(f)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func generate(iface *model.Interface, cfg emit.Config, outDir string) error {
	files, err := emit.Generate(iface, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(outDir, f.Path)
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("wrote %s (%d bytes)\n", path, len(f.Content))
	}
	return nil
}

func listFunctions(iface *model.Interface, prefix string) {
	layouts := layout.New()
	fmt.Printf("Interface: %s\n", iface.QualifiedName())
	if rs := iface.Resources(); len(rs) > 0 {
		fmt.Printf("\nResources:\n")
		for _, r := range rs {
			fmt.Printf("  %s\n", r.Name)
		}
	}
	section := func(title string, funcs []*model.Function, dir layout.Direction) {
		if len(funcs) == 0 {
			return
		}
		fmt.Printf("\n%s:\n", title)
		for _, f := range funcs {
			sig := layouts.Signature(f, dir)
			fmt.Printf("  %s%s  %s\n", prefix, f.ExportName(""), describeSig(f, sig))
		}
	}
	section("Exports", iface.Exports(), layout.Export)
	section("Imports", iface.Imports(), layout.Import)
}

func describeSig(f *model.Function, sig *layout.Signature) string {
	var params []string
	for _, p := range f.Params {
		params = append(params, p.Name+": "+p.Type.String())
	}
	s := "(" + strings.Join(params, ", ") + ")"
	if f.Result != nil {
		s += " -> " + f.Result.String()
	}
	s += fmt.Sprintf("  core %d -> %d", len(sig.Params), len(sig.Results))
	if sig.ParamsSpilled {
		s += " spilled"
	}
	if sig.ResultSpilled {
		s += " retptr"
	}
	return s
}

func printPlan(iface *model.Interface, name, prefix string) error {
	gen := abi.NewGenerator(layout.New(), abi.WithExportPrefix(prefix))
	if f := iface.Export(name); f != nil {
		fmt.Print(gen.Export(f))
		return nil
	}
	if f := iface.Import(name); f != nil {
		fmt.Print(gen.Import(f))
		return nil
	}
	return errors.NotFound(errors.PhaseModel, "function", name)
}

// instantiate loads wasm with every import answered by an error, which is
// enough to call exports that do not reach the host.
func instantiate(ctx context.Context, iface *model.Interface, wasmFile, prefix string) (*engine.Runtime, *engine.Instance, error) {
	wasm, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read module: %w", err)
	}
	rt, err := engine.NewRuntime(&engine.Config{})
	if err != nil {
		return nil, nil, err
	}
	imports := make(map[string]engine.HostFunc)
	for _, f := range iface.Imports() {
		name := f.ExportName("")
		imports[name] = func(context.Context, []any) (any, error) {
			return nil, fmt.Errorf("import %s is not available from the command line", name)
		}
	}
	inst, err := rt.Instantiate(ctx, wasm, iface, &engine.InstanceConfig{
		Imports:      imports,
		ExportPrefix: prefix,
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return rt, inst, nil
}

func call(iface *model.Interface, wasmFile, name, rawArgs, prefix string) error {
	ctx := context.Background()
	f := iface.Export(name)
	if f == nil {
		return errors.NotFound(errors.PhaseModel, "export", name)
	}
	args, err := parseArgs(f, rawArgs)
	if err != nil {
		return err
	}

	rt, inst, err := instantiate(ctx, iface, wasmFile, prefix)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	defer inst.Close(ctx)

	fmt.Printf("Calling %s...\n", name)
	result, err := inst.CallFunc(ctx, f, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	if f.Result != nil {
		fmt.Printf("Result: %s\n", formatValue(f.Result, result))
	}
	return nil
}
