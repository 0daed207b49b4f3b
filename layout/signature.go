package layout

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/model"
)

// Direction selects which side of the boundary implements a function.
type Direction uint8

const (
	// Export: the module implements the function and the host calls it.
	Export Direction = iota
	// Import: the host implements the function and the module calls it.
	Import
)

func (d Direction) String() string {
	if d == Import {
		return "import"
	}
	return "export"
}

// Signature is the core function type of a component function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType

	// ParamsSpilled: the flattened params exceed MaxFlatParams and are
	// passed as a single pointer to ParamArea.
	ParamsSpilled bool
	ParamArea     *Layout

	// ResultSpilled: the flattened result exceeds MaxFlatResults. For
	// exports the core function returns a pointer; for imports the caller
	// appends a return pointer param.
	ResultSpilled bool

	// FlatParams and FlatResults are the unspilled flattenings.
	FlatParams  []api.ValueType
	FlatResults []api.ValueType
}

type sigKey struct {
	fn  *model.Function
	dir Direction
}

// Signature computes the core signature of f in the given direction.
// The result is memoized per function and direction.
func (e *Engine) Signature(f *model.Function, dir Direction) *Signature {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := sigKey{f, dir}
	if s, ok := e.sigs[key]; ok {
		return s
	}

	s := &Signature{}
	for _, p := range f.Params {
		s.FlatParams = append(s.FlatParams, e.of(p.Type).Flat...)
	}
	if f.Result != nil {
		s.FlatResults = e.of(f.Result).Flat
	}

	s.Params = s.FlatParams
	if len(s.FlatParams) > MaxFlatParams {
		s.ParamsSpilled = true
		s.ParamArea = e.structOf(f.ParamTypes())
		s.Params = []api.ValueType{api.ValueTypeI32}
	}

	s.Results = s.FlatResults
	if len(s.FlatResults) > MaxFlatResults {
		s.ResultSpilled = true
		switch dir {
		case Export:
			s.Results = []api.ValueType{api.ValueTypeI32}
		case Import:
			s.Params = append(append([]api.ValueType(nil), s.Params...), api.ValueTypeI32)
			s.Results = nil
		}
	}

	e.sigs[key] = s
	return s
}
