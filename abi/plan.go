package abi

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

// Reg is a virtual register. Flat registers hold core values as uint64 bit
// patterns; host registers hold host values.
type Reg int

func (r Reg) String() string { return fmt.Sprintf("v%d", int(r)) }

// Op is a plan instruction opcode.
type Op uint8

const (
	OpArg Op = iota
	OpConst
	OpBitcast

	OpLowerScalar
	OpRecordLower
	OpTupleLower
	OpFlagsLower
	OpEnumLower
	OpVariantLower
	OpStringLower
	OpListLower
	OpHandleLower

	OpLiftScalar
	OpRecordLift
	OpTupleLift
	OpFlagsLift
	OpEnumLift
	OpVariantLift
	OpStringLift
	OpListLift
	OpHandleLift

	OpLoad
	OpStore
	OpAlloc
	OpCallWasm
	OpCallHost
	OpReturn
)

var opNames = [...]string{
	OpArg:          "arg",
	OpConst:        "const",
	OpBitcast:      "bitcast",
	OpLowerScalar:  "lower-scalar",
	OpRecordLower:  "record-lower",
	OpTupleLower:   "tuple-lower",
	OpFlagsLower:   "flags-lower",
	OpEnumLower:    "enum-lower",
	OpVariantLower: "variant-lower",
	OpStringLower:  "string-lower",
	OpListLower:    "list-lower",
	OpHandleLower:  "handle-lower",
	OpLiftScalar:   "lift-scalar",
	OpRecordLift:   "record-lift",
	OpTupleLift:    "tuple-lift",
	OpFlagsLift:    "flags-lift",
	OpEnumLift:     "enum-lift",
	OpVariantLift:  "variant-lift",
	OpStringLift:   "string-lift",
	OpListLift:     "list-lift",
	OpHandleLift:   "handle-lift",
	OpLoad:         "load",
	OpStore:        "store",
	OpAlloc:        "alloc",
	OpCallWasm:     "call-wasm",
	OpCallHost:     "call-host",
	OpReturn:       "return",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

// Instr is one plan instruction.
//
// Operand use by opcode:
//
//	arg            Dst = argument Index
//	const          Dst = Value as a To core value
//	bitcast        Dst = Src[0] reinterpreted From -> To
//	lower-scalar   Dst = flat of host Src[0]            (Type)
//	lift-scalar    Dst = host of flat Src[0]            (Type)
//	record-lower   Dst[i] = field i of host Src[0]
//	record-lift    Dst = record of host Src
//	flags-lower    Dst = flag words of host Src[0]
//	flags-lift     Dst = host flags of words Src
//	enum-lower     Dst = discriminant of host Src[0]
//	enum-lift      Dst = host case of discriminant Src[0]
//	variant-lower  Dst[0] = discriminant of host Src[0]; Dst[1:] = joined
//	               payload flats yielded by the selected case block. Case
//	               blocks take the payload as their only param, if any.
//	variant-lift   Dst = host variant of discriminant Src[0]; the selected
//	               case block yields the payload, if any.
//	string-lower   Dst = (ptr, len) of host Src[0] copied into module memory
//	string-lift    Dst = host string read from (Src[0], Src[1])
//	list-lower     Dst = (ptr, len); Blocks[0] runs per element with params
//	               (element, element address)
//	list-lift      Dst = host list read from (Src[0], Src[1]); Blocks[0]
//	               runs per element with param (element address) and
//	               yields the element
//	handle-lower   Dst = handle for host Src[0]            (Type own/borrow)
//	handle-lift    Dst = host handle for Src[0]
//	load           Dst = Size bytes at Src[0]+Offset, zero extended
//	store          Size low bytes of Src[0] written at Src[1]+Offset
//	alloc          Dst = module allocation of Size bytes at Align
//	call-wasm      Dst = results of export Name called with Src;
//	               PostReturn names the export releasing the results
//	call-host      Dst = result of import Func called with host Src
//	return         plan results are Src
type Instr struct {
	Op  Op
	Dst []Reg
	Src []Reg

	Type  *model.Type
	Index int
	Value uint64

	From, To api.ValueType

	Offset uint32
	Size   uint32
	Align  uint32

	Name       string
	PostReturn string
	Func       *model.Function

	Blocks []*Block

	// Memory marks variant-lower/variant-lift operating on linear memory:
	// case blocks yield no flats on lowering.
	Memory bool
}

// Block is a nested instruction sequence. Blocks see every register
// defined before them.
type Block struct {
	Params []Reg
	Body   []*Instr
	Yield  []Reg
}

// PlanKind identifies what a plan converts.
type PlanKind uint8

const (
	PlanLower PlanKind = iota
	PlanLift
	PlanStore
	PlanLoad
	PlanExport
	PlanImport
)

func (k PlanKind) String() string {
	switch k {
	case PlanLower:
		return "lower"
	case PlanLift:
		return "lift"
	case PlanStore:
		return "store"
	case PlanLoad:
		return "load"
	case PlanExport:
		return "export"
	case PlanImport:
		return "import"
	}
	return "unknown"
}

// Plan is a generated lowering or lifting sequence. Plans are immutable
// once built and shared between the interpreter and emission backends.
//
// Arguments by kind:
//
//	lower   host value                      -> flats
//	lift    flats                           -> host value
//	store   host value, address             -> nothing
//	load    address                         -> host value
//	export  host params                     -> host result, if any
//	import  core params (flats or pointer)  -> core results
type Plan struct {
	Kind PlanKind
	Name string
	Type *model.Type
	Func *model.Function
	Sig  *layout.Signature
	Body *Block
	Regs int
	Args int

	// PostReturn is the post-return export an export plan calls after
	// lifting, or "" when its result needs none.
	PostReturn string
}

// String renders the plan as a listing.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", p.Kind, p.Name)
	if p.Type != nil {
		fmt.Fprintf(&b, ": %s", p.Type)
	}
	b.WriteByte('\n')
	writeBlock(&b, p.Body, 1)
	return b.String()
}

func writeBlock(b *strings.Builder, blk *Block, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, in := range blk.Body {
		b.WriteString(indent)
		writeInstr(b, in)
		b.WriteByte('\n')
		for i, sub := range in.Blocks {
			b.WriteString(indent)
			b.WriteString("  ")
			b.WriteString(blockLabel(in, i))
			if len(sub.Params) > 0 {
				fmt.Fprintf(b, " (%s)", regList(sub.Params))
			}
			b.WriteString(":\n")
			writeBlock(b, sub, depth+2)
			if len(sub.Yield) > 0 {
				fmt.Fprintf(b, "%s    yield %s\n", indent, regList(sub.Yield))
			}
		}
	}
}

func blockLabel(in *Instr, i int) string {
	switch in.Op {
	case OpVariantLower, OpVariantLift:
		return "case " + in.Type.CaseName(i)
	case OpListLower, OpListLift:
		return "each"
	}
	return fmt.Sprintf("block %d", i)
}

func writeInstr(b *strings.Builder, in *Instr) {
	if len(in.Dst) > 0 {
		b.WriteString(regList(in.Dst))
		b.WriteString(" = ")
	}
	b.WriteString(in.Op.String())

	switch in.Op {
	case OpArg:
		fmt.Fprintf(b, " %d", in.Index)
		return
	case OpConst:
		fmt.Fprintf(b, " %s %d", api.ValueTypeName(in.To), in.Value)
		return
	case OpBitcast:
		fmt.Fprintf(b, " %s->%s", api.ValueTypeName(in.From), api.ValueTypeName(in.To))
	case OpLoad, OpStore:
		fmt.Fprintf(b, " %d@%d", in.Size, in.Offset)
	case OpAlloc:
		fmt.Fprintf(b, " %d align %d", in.Size, in.Align)
		return
	case OpCallWasm:
		fmt.Fprintf(b, " %q", in.Name)
		if in.PostReturn != "" {
			fmt.Fprintf(b, " post %q", in.PostReturn)
		}
	case OpCallHost:
		fmt.Fprintf(b, " %q", in.Name)
	default:
		if in.Type != nil {
			fmt.Fprintf(b, "<%s>", in.Type)
		}
	}
	if len(in.Src) > 0 {
		b.WriteByte(' ')
		b.WriteString(regList(in.Src))
	}
}

func regList(regs []Reg) string {
	parts := make([]string, len(regs))
	for i, r := range regs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// Walk calls fn for every instruction of blk in order, entering nested
// blocks after their owning instruction.
func Walk(blk *Block, fn func(*Instr)) {
	for _, in := range blk.Body {
		fn(in)
		for _, sub := range in.Blocks {
			Walk(sub, fn)
		}
	}
}
