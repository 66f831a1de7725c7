package generator

import (
	"github.com/snarg/cel-logd/internal/cel"
)

// Interpretor classifies one linked-id CEL group and extracts the raw
// call shape from it. Implementations are deterministic over the input
// order and keep no state between calls.
//
// The generator walks an ordered interpretor list and uses the first one
// whose CanInterpret returns true.
type Interpretor interface {
	Name() string
	CanInterpret(cels []cel.CEL) bool
	Interpret(cels []cel.CEL, raw *RawCallLog) *RawCallLog
}

// DefaultInterpretors returns the production interpretor list. Order
// matters: the most specific call shapes come first, the general bridged
// interpretor last.
func DefaultInterpretors() []Interpretor {
	return []Interpretor{
		&localOriginateInterpretor{},
		&bridgedCallInterpretor{},
	}
}
