// Package jacklex implements the Jack tokenizer: comment stripping,
// longest-match lexing into token.Token values, and a one-token
// lookahead ring buffer for the compilation engine's term
// disambiguation (see internal/jack).
package jacklex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/token"
)

var (
	keywordRegex  = regexp.MustCompile(`class|constructor|function|method|field|static|var|int|char|boolean|void|true|false|null|this|let|do|if|else|while|return`)
	symbolRegex   = regexp.MustCompile(`[{}\[\]().,;+\-*/&|<>=~]`)
	intRegex      = regexp.MustCompile(`[0-9]+`)
	stringRegex   = regexp.MustCompile(`"[^"\n]*"`)
	identRegex    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

	// Precedence used to break ties when two candidate regexes match
	// a run of equal length at the same position: string literal >
	// symbol > keyword > identifier > integer.
	candidates = []struct {
		kind token.Kind
		re   *regexp.Regexp
	}{
		{token.StrConst, stringRegex},
		{token.Symbol, symbolRegex},
		{token.Keyword, keywordRegex},
		{token.Identifier, identRegex},
		{token.IntConst, intRegex},
	}
)

func init() {
	for _, c := range candidates {
		c.re.Longest()
	}
}

// commentFilter strips `//`, `/* */` and `/** */` comments from the
// underlying rune stream before any token is matched. It tracks
// whether it is between the double quotes of a string literal (which
// cannot span lines) and passes `//` and `/*` through unchanged there,
// so comment markers inside a string literal are never treated as
// comments.
type commentFilter struct {
	r        *bufio.Reader
	inString bool
}

func newCommentFilter(r io.Reader) *commentFilter {
	return &commentFilter{r: bufio.NewReader(r)}
}

func (f *commentFilter) Read(b []byte) (int, error) {
	i := 0
	for i < len(b) {
		ch, n, err := f.r.ReadRune()
		if n == 0 {
			return i, err
		}

		if ch == '/' && !f.inString {
			next, _, nextErr := f.r.ReadRune()
			switch {
			case nextErr != nil:
				// Lone trailing '/': emit it and surface EOF on the next call.
				i += utf8.EncodeRune(b[i:], ch)
				return i, nil
			case next == '/':
				if _, err := f.r.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
					return i, err
				}
				continue
			case next == '*':
				if err := f.skipBlockComment(); err != nil {
					return i, err
				}
				continue
			default:
				if err := f.r.UnreadRune(); err != nil {
					return i, err
				}
			}
		}

		if i+n > len(b) {
			if err := f.r.UnreadRune(); err != nil {
				return i, err
			}
			return i, nil
		}
		i += utf8.EncodeRune(b[i:], ch)
		switch ch {
		case '"':
			f.inString = !f.inString
		case '\n':
			f.inString = false
		}
		if err != nil {
			return i, err
		}
	}
	return i, nil
}

// skipBlockComment discards runes up to and including the closing
// "*/" of a `/* ... */` or `/** ... */` comment. Block comments may
// span multiple lines.
func (f *commentFilter) skipBlockComment() error {
	prev := byte(0)
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &diag.LexError{Pos: "<block comment>", Err: fmt.Errorf("unterminated block comment")}
			}
			return err
		}
		if prev == '*' && b == '/' {
			return nil
		}
		prev = b
	}
}

// Tokenizer turns a byte stream into a sequence of token.Token
// values. It exposes Advance/Token/PeekNext/Err matching the
// one-token-lookahead contract required by term disambiguation.
type Tokenizer struct {
	scanner *bufio.Scanner
	cur     token.Token
	queued  []token.Token
	err     error
}

// New constructs a Tokenizer reading Jack source from r.
func New(r io.Reader) *Tokenizer {
	scanner := bufio.NewScanner(newCommentFilter(r))
	scanner.Split(splitToken)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Tokenizer{scanner: scanner}
}

// Err returns the first lexing error encountered, if any.
func (t *Tokenizer) Err() error { return t.err }

// HasMore reports whether a further call to Advance would succeed,
// without consuming anything.
func (t *Tokenizer) HasMore() bool {
	if len(t.queued) > 0 {
		return true
	}
	next, ok := t.scanText()
	if !ok {
		return false
	}
	t.queued = append(t.queued, next)
	return true
}

// Advance consumes the next token, making it available via Token.
// It returns false at EOF or on error (inspect Err to distinguish).
func (t *Tokenizer) Advance() bool {
	if len(t.queued) > 0 {
		t.cur, t.queued = t.queued[0], t.queued[1:]
		return true
	}
	next, ok := t.scanText()
	if !ok {
		return false
	}
	t.cur = next
	return true
}

// Token returns the most recently Advance()-d token.
func (t *Tokenizer) Token() token.Token { return t.cur }

// PeekNext returns the token that a following Advance() would yield,
// without consuming it. ok is false at EOF.
func (t *Tokenizer) PeekNext() (next token.Token, ok bool) {
	if len(t.queued) > 0 {
		return t.queued[0], true
	}
	tok, scanned := t.scanText()
	if !scanned {
		return token.Token{}, false
	}
	t.queued = append(t.queued, tok)
	return tok, true
}

func (t *Tokenizer) scanText() (token.Token, bool) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			t.err = err
		}
		return token.Token{}, false
	}
	tok, err := classify(t.scanner.Text())
	if err != nil {
		t.err = err
		return token.Token{}, false
	}
	return tok, true
}

// classify assigns a Kind to a single already-isolated lexeme
// (produced by splitToken) and range-checks integer constants against
// [0, 32767].
func classify(lexeme string) (token.Token, error) {
	kind, span := bestMatch(lexeme)
	if span == nil || span[0] != 0 || span[1] != len(lexeme) {
		return token.Token{}, &diag.LexError{Pos: lexeme, Err: fmt.Errorf("unrecognized token %q", lexeme)}
	}

	switch kind {
	case token.StrConst:
		return token.Token{Kind: token.StrConst, Text: lexeme[1 : len(lexeme)-1]}, nil
	case token.IntConst:
		n, err := strconv.Atoi(lexeme)
		if err != nil || n > token.MaxIntConst || n < 0 {
			return token.Token{}, &diag.LexError{Pos: lexeme, Err: diag.ErrIntOutOfRange}
		}
		return token.Token{Kind: token.IntConst, Text: lexeme}, nil
	default:
		return token.Token{Kind: kind, Text: lexeme}, nil
	}
}

// bestMatch finds, among the candidate regexes, the longest match
// starting earliest in s, breaking ties using the precedence order
// declared in `candidates` (string > symbol > keyword > identifier >
// integer).
func bestMatch(s string) (token.Kind, []int) {
	var bestKind token.Kind
	var best []int
	for _, c := range candidates {
		m := c.re.FindStringIndex(s)
		if m == nil {
			continue
		}
		if best == nil || m[0] < best[0] || (m[0] == best[0] && (m[1]-m[0]) > (best[1]-best[0])) {
			best = m
			bestKind = c.kind
		}
	}
	return bestKind, best
}

// splitToken is a bufio.SplitFunc that isolates exactly one lexeme
// per call, skipping leading whitespace.
func splitToken(data []byte, atEOF bool) (advance int, token []byte, err error) {
	text := string(data)
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	skipped := len(text) - len(trimmed)

	if len(trimmed) == 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}

	_, match := bestMatch(trimmed)
	if match == nil || match[0] != 0 {
		if atEOF {
			return 0, nil, &diag.LexError{Pos: "<input>", Err: fmt.Errorf("unrecognized token near %q", trimmed)}
		}
		return 0, nil, nil
	}

	// If the match butts up against the end of the currently buffered
	// data and we are not at EOF, there may be more to match (e.g. a
	// longer identifier); ask bufio.Scanner for more data first.
	if match[1] == len(trimmed) && !atEOF {
		return 0, nil, nil
	}

	advance = skipped + match[1]
	return advance, []byte(trimmed[match[0]:match[1]]), nil
}
