// Package vmcode defines the VM command data model shared by both
// pipelines: the Jack compiler's VM writer (Pipeline J's output) spells
// segments and operations with the same Segment and Operation values
// that the VM parser (Pipeline V's input) produces, so the two halves
// of the toolchain never drift apart on segment or operation spelling.
package vmcode

import "github.com/libklein/n2t-toolchain/internal/token"

// Segment names one of the eight VM memory segments.
type Segment string

const (
	Constant Segment = "constant"
	Argument Segment = "argument"
	Local    Segment = "local"
	Static   Segment = "static"
	This     Segment = "this"
	That     Segment = "that"
	Pointer  Segment = "pointer"
	Temp     Segment = "temp"
)

// Operation names one of the nine arithmetic/logical VM operations.
type Operation string

const (
	Add Operation = "add"
	Sub Operation = "sub"
	Neg Operation = "neg"
	Eq  Operation = "eq"
	Gt  Operation = "gt"
	Lt  Operation = "lt"
	And Operation = "and"
	Or  Operation = "or"
	Not Operation = "not"
)

// Kind tags which of the nine VM command shapes a Command carries.
type Kind int

const (
	Push Kind = iota
	Pop
	Arith
	Label
	Goto
	IfGoto
	Function
	Call
	Return
)

// Command is a tagged-variant VM instruction record, produced by the
// VM translator's Parser and consumed by its CodeWriter; the Jack
// compiler's VMWriter writes VM text directly and does not build
// Commands. Only the fields relevant to Kind are populated; the rest
// are zero.
type Command struct {
	Kind    Kind
	Segment Segment       // Push, Pop
	Index   token.MachineWord // Push, Pop
	Op      Operation     // Arith
	Name    string        // Label, Goto, IfGoto, Function, Call
	NArgs   token.MachineWord // Call
	NLocals token.MachineWord // Function
}
