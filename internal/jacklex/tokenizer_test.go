package jacklex

import (
	"strings"
	"testing"

	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectTokens(t *testing.T, src string) []token.Token {
	t.Helper()
	tok := New(strings.NewReader(src))
	var out []token.Token
	for tok.Advance() {
		out = append(out, tok.Token())
	}
	require.NoError(t, tok.Err())
	return out
}

func TestTokenizerStripsLineComments(t *testing.T) {
	toks := collectTokens(t, "let x = 1; // assign x\nlet y = 2;")
	var texts []string
	for _, tk := range toks {
		texts = append(texts, tk.Text)
	}
	assert.Equal(t, []string{"let", "x", "=", "1", ";", "let", "y", "=", "2", ";"}, texts)
}

func TestTokenizerStripsBlockComments(t *testing.T) {
	toks := collectTokens(t, "/** doc\n * comment\n */\nlet x = 1;")
	require.Len(t, toks, 5)
	assert.Equal(t, "let", toks[0].Text)
}

func TestTokenizerUnterminatedBlockCommentErrors(t *testing.T) {
	tok := New(strings.NewReader("let x = 1; /* never closed"))
	for tok.Advance() {
	}
	require.Error(t, tok.Err())
	var lexErr *diag.LexError
	assert.ErrorAs(t, tok.Err(), &lexErr)
}

func TestTokenizerLongestMatchPrecedence(t *testing.T) {
	toks := collectTokens(t, "classify")
	require.Len(t, toks, 1)
	assert.Equal(t, token.Identifier, toks[0].Kind)
	assert.Equal(t, "classify", toks[0].Text)
}

func TestTokenizerIntConstBoundary(t *testing.T) {
	toks := collectTokens(t, "32767")
	require.Len(t, toks, 1)
	assert.Equal(t, token.IntConst, toks[0].Kind)
}

func TestTokenizerIntConstOutOfRange(t *testing.T) {
	tok := New(strings.NewReader("32768"))
	ok := tok.Advance()
	assert.False(t, ok)
	var lexErr *diag.LexError
	require.ErrorAs(t, tok.Err(), &lexErr)
	assert.ErrorIs(t, lexErr, diag.ErrIntOutOfRange)
}

func TestTokenizerStringConstantStripsQuotes(t *testing.T) {
	toks := collectTokens(t, `"hello world"`)
	require.Len(t, toks, 1)
	assert.Equal(t, token.StrConst, toks[0].Kind)
	assert.Equal(t, "hello world", toks[0].Text)
}

func TestTokenizerPeekNextDoesNotConsume(t *testing.T) {
	tok := New(strings.NewReader("a b"))
	require.True(t, tok.Advance())
	assert.Equal(t, "a", tok.Token().Text)

	peeked, ok := tok.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "b", peeked.Text)
	assert.Equal(t, "a", tok.Token().Text, "peek must not consume")

	require.True(t, tok.Advance())
	assert.Equal(t, "b", tok.Token().Text)
}

func TestTokenizerSymbolVsIdentifierDisambiguation(t *testing.T) {
	toks := collectTokens(t, "x[i]")
	var texts []string
	for _, tk := range toks {
		texts = append(texts, tk.Text)
	}
	assert.Equal(t, []string{"x", "[", "i", "]"}, texts)
}
