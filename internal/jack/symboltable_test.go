package jack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableDenseIndicesPerKind(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()

	assert.EqualValues(t, 0, sym.Define("x", "int", KindField))
	assert.EqualValues(t, 1, sym.Define("y", "int", KindField))
	assert.EqualValues(t, 0, sym.Define("count", "int", KindStatic))

	sym.StartSubroutine()
	assert.EqualValues(t, 0, sym.Define("a", "int", KindArgument))
	assert.EqualValues(t, 1, sym.Define("b", "int", KindArgument))
	assert.EqualValues(t, 0, sym.Define("tmp", "int", KindLocal))
}

func TestSymbolTableStaticFieldPersistAcrossSubroutines(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()
	sym.Define("x", "int", KindField)
	sym.Define("y", "int", KindField)

	sym.StartSubroutine()
	sym.Define("a", "int", KindArgument)

	sym.StartSubroutine()
	s, ok := sym.Lookup("x")
	require.True(t, ok)
	assert.EqualValues(t, 0, s.Index)

	_, ok = sym.Lookup("a")
	assert.False(t, ok, "subroutine scope must reset between StartSubroutine calls")

	assert.EqualValues(t, 2, sym.VarCount(KindField))
}

func TestSymbolTableMethodThisIsArgumentZero(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()
	sym.StartSubroutine()
	idx := sym.Define("this", "Point", KindArgument)
	assert.EqualValues(t, 0, idx)

	sym.Define("dx", "int", KindArgument)
	s, ok := sym.Lookup("dx")
	require.True(t, ok)
	assert.EqualValues(t, 1, s.Index)
}

func TestSymbolTableLookupPrefersSubroutineScope(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()
	sym.Define("x", "int", KindField)

	sym.StartSubroutine()
	sym.Define("x", "boolean", KindLocal)

	s, ok := sym.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, KindLocal, s.Kind)
	assert.Equal(t, "boolean", s.Type)
}

func TestSymbolTableStartClassResetsEverything(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()
	sym.Define("x", "int", KindField)

	sym.StartClass()
	_, ok := sym.Lookup("x")
	assert.False(t, ok)
	assert.EqualValues(t, 0, sym.VarCount(KindField))
}

func TestClassNamesDeterministicOrder(t *testing.T) {
	sym := NewSymbolTable(nil)
	sym.StartClass()
	sym.Define("zeta", "int", KindField)
	sym.Define("alpha", "int", KindStatic)

	assert.Equal(t, []string{"alpha", "zeta"}, sym.ClassNames())
}
