package jack

import "github.com/libklein/n2t-toolchain/internal/token"

// Kind tags which of the four symbol categories a declared identifier
// belongs to.
type Kind string

const (
	KindStatic   Kind = "static"
	KindField    Kind = "field"
	KindArgument Kind = "argument"
	KindLocal    Kind = "local"
)

// Symbol is a symbol-table entry: a type name, a kind, and a
// per-kind, per-scope dense index.
type Symbol struct {
	Type  string
	Kind  Kind
	Index token.MachineWord
}
