package ir

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokSym    // @name
	tokReg    // %name
	tokString // "..."
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokLBrack
	tokRBrack
	tokComma
	tokColon
	tokAssign
)

type token struct {
	kind tokKind
	text string
	n    int64
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokInt:
		return strconv.FormatInt(t.n, 10)
	case tokSym:
		return "@" + t.text
	case tokReg:
		return "%" + t.text
	case tokString:
		return strconv.Quote(t.text)
	}
	return t.text
}

type scanner struct {
	src  string
	off  int
	line int
}

func newScanner(src string) *scanner {
	return &scanner{src: src, line: 1}
}

func (s *scanner) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", s.line, fmt.Sprintf(format, args...))
}

func (s *scanner) skipSpace() {
	for s.off < len(s.src) {
		c := s.src[s.off]
		switch {
		case c == '\n':
			s.line++
			s.off++
		case c == ' ' || c == '\t' || c == '\r':
			s.off++
		case c == ';':
			for s.off < len(s.src) && s.src[s.off] != '\n' {
				s.off++
			}
		default:
			return
		}
	}
}

func identChar(c byte) bool {
	return c == '_' || c == '.' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c >= 0x80 // rest of a multi-byte rune
}

func (s *scanner) scanIdent() string {
	start := s.off
	for s.off < len(s.src) && identChar(s.src[s.off]) {
		s.off++
	}
	// Symbol identity must be canonical regardless of how the source
	// file encoded it.
	return norm.NFC.String(s.src[start:s.off])
}

func (s *scanner) next() (token, error) {
	s.skipSpace()
	if s.off >= len(s.src) {
		return token{kind: tokEOF, line: s.line}, nil
	}
	line := s.line
	c := s.src[s.off]
	switch c {
	case '(':
		s.off++
		return token{kind: tokLParen, text: "(", line: line}, nil
	case ')':
		s.off++
		return token{kind: tokRParen, text: ")", line: line}, nil
	case '{':
		s.off++
		return token{kind: tokLBrace, text: "{", line: line}, nil
	case '}':
		s.off++
		return token{kind: tokRBrace, text: "}", line: line}, nil
	case '[':
		s.off++
		return token{kind: tokLBrack, text: "[", line: line}, nil
	case ']':
		s.off++
		return token{kind: tokRBrack, text: "]", line: line}, nil
	case ',':
		s.off++
		return token{kind: tokComma, text: ",", line: line}, nil
	case ':':
		s.off++
		return token{kind: tokColon, text: ":", line: line}, nil
	case '=':
		s.off++
		return token{kind: tokAssign, text: "=", line: line}, nil
	case '@':
		s.off++
		name := s.scanIdent()
		if name == "" {
			return token{}, s.errf("empty symbol name after '@'")
		}
		return token{kind: tokSym, text: name, line: line}, nil
	case '%':
		s.off++
		name := s.scanIdent()
		if name == "" {
			return token{}, s.errf("empty register name after '%%'")
		}
		return token{kind: tokReg, text: name, line: line}, nil
	case '"':
		end := strings.IndexByte(s.src[s.off+1:], '"')
		if end < 0 {
			return token{}, s.errf("unterminated string")
		}
		text := s.src[s.off+1 : s.off+1+end]
		s.off += end + 2
		return token{kind: tokString, text: text, line: line}, nil
	}
	if c == '-' || '0' <= c && c <= '9' {
		start := s.off
		s.off++
		for s.off < len(s.src) && '0' <= s.src[s.off] && s.src[s.off] <= '9' {
			s.off++
		}
		n, err := strconv.ParseInt(s.src[start:s.off], 10, 64)
		if err != nil {
			return token{}, s.errf("bad integer %q: %v", s.src[start:s.off], err)
		}
		return token{kind: tokInt, n: n, line: line}, nil
	}
	if identChar(c) {
		return token{kind: tokIdent, text: s.scanIdent(), line: line}, nil
	}
	return token{}, s.errf("unexpected character %q", c)
}
