package emit

import (
	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/model"
)

// File is one generated output file. Path is relative to the output
// directory.
type File struct {
	Path    string
	Content []byte
}

// Resource is a resource of the interface together with the side that
// implements it. Exported resources live in the module and are reached
// through handles; the others are host values the module holds handles to.
type Resource struct {
	*model.Resource
	Exported bool
}

// Func is the rendering state of one function plan. The driver creates it
// through BeginFunc and hands it back for every segment of the plan.
type Func struct {
	Plan   *abi.Plan
	W      *Writer
	Export bool

	// State belongs to the backend.
	State any
}

// Codec renders the ABI-carrying parts of a binding. Every backend emits a
// structurally equivalent instance of each.
type Codec interface {
	// EmitLowering renders instructions turning host values into core
	// values: parameters of an export, the result of an import.
	EmitLowering(f *Func, seg []*abi.Instr) error

	// EmitLifting renders instructions turning core values into host
	// values: the result of an export, parameters of an import.
	EmitLifting(f *Func, seg []*abi.Instr) error

	// EmitResourceTable renders the handle table of a resource, its
	// wrapper types and the intrinsics the module calls.
	EmitResourceTable(w *Writer, r *Resource) error

	// EmitPostReturn renders the deferred post-return call following call.
	EmitPostReturn(f *Func, call *abi.Instr) error
}

// Backend is a target language.
type Backend interface {
	Codec

	// Name is the target name the backend registers under.
	Name() string

	// Begin prepares a unit; End renders its files.
	Begin(u *Unit) error
	End(u *Unit) ([]File, error)

	// EmitType declares an interface type.
	EmitType(w *Writer, t *model.Type) error

	// BeginFunc opens the function for a plan, EmitCall renders the
	// boundary call, EndFunc closes it.
	BeginFunc(w *Writer, p *abi.Plan) (*Func, error)
	EmitCall(f *Func, call *abi.Instr) error
	EndFunc(f *Func) error
}
