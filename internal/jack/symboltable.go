package jack

import (
	"fmt"
	"sort"

	"github.com/libklein/n2t-toolchain/internal/token"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// SymbolTable is a two-level scoped table: a class scope
// (STATIC/FIELD) that persists for the lifetime of a class, and a
// subroutine scope (ARG/LOCAL) reset at every subroutine header.
// Lookup checks the subroutine scope before the class scope.
type SymbolTable struct {
	class      map[string]Symbol
	subroutine map[string]Symbol
	counts     map[Kind]token.MachineWord // class-scope counters, persist across StartSubroutine
	subCounts  map[Kind]token.MachineWord // subroutine-scope counters

	log *zap.Logger
}

// NewSymbolTable returns an empty table. A nil logger is replaced
// with zap's no-op logger so callers may omit one in tests.
func NewSymbolTable(log *zap.Logger) *SymbolTable {
	if log == nil {
		log = zap.NewNop()
	}
	return &SymbolTable{
		class:      make(map[string]Symbol),
		subroutine: make(map[string]Symbol),
		counts:     make(map[Kind]token.MachineWord),
		subCounts:  make(map[Kind]token.MachineWord),
		log:        log,
	}
}

// StartClass resets both scopes and both sets of counters; called
// once per compiled class.
func (t *SymbolTable) StartClass() {
	t.class = make(map[string]Symbol)
	t.counts = make(map[Kind]token.MachineWord)
	t.StartSubroutine()
}

// StartSubroutine clears the subroutine scope and resets the
// ARG/LOCAL counters. STATIC/FIELD counters are untouched.
func (t *SymbolTable) StartSubroutine() {
	t.subroutine = make(map[string]Symbol)
	t.subCounts = make(map[Kind]token.MachineWord)
}

// Define inserts name into the appropriate scope for its kind and
// returns the index assigned. Redefinition within the same scope is
// not diagnosed: the last Define wins and its index overwrites any
// prior entry for name.
func (t *SymbolTable) Define(name, varType string, kind Kind) token.MachineWord {
	var idx token.MachineWord
	switch kind {
	case KindStatic, KindField:
		idx = t.counts[kind]
		t.counts[kind]++
		t.class[name] = Symbol{Type: varType, Kind: kind, Index: idx}
	case KindArgument, KindLocal:
		idx = t.subCounts[kind]
		t.subCounts[kind]++
		t.subroutine[name] = Symbol{Type: varType, Kind: kind, Index: idx}
	default:
		panic(fmt.Sprintf("symbol table: unknown kind %q", kind))
	}
	t.log.Debug("defined symbol", zap.String("name", name), zap.String("type", varType), zap.String("kind", string(kind)), zap.Int16("index", idx))
	return idx
}

// VarCount returns the current counter for kind in whichever scope
// owns it (class scope for STATIC/FIELD, subroutine scope for
// ARG/LOCAL).
func (t *SymbolTable) VarCount(kind Kind) token.MachineWord {
	switch kind {
	case KindStatic, KindField:
		return t.counts[kind]
	default:
		return t.subCounts[kind]
	}
}

// Lookup resolves name, checking the subroutine scope first. A miss
// means name denotes a class name or an external subroutine, not a
// variable.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	if s, ok := t.subroutine[name]; ok {
		return s, true
	}
	if s, ok := t.class[name]; ok {
		return s, true
	}
	return Symbol{}, false
}

// ClassNames returns a deterministically ordered snapshot of the
// current class scope, used by --dump-symbols diagnostics.
func (t *SymbolTable) ClassNames() []string {
	names := maps.Keys(t.class)
	sort.Strings(names)
	return names
}
