package dsl

import (
	"fmt"
	"unicode"
)

// ParseError reports the offending token's position in the source text.
type ParseError struct {
	Line    int
	Col     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Message)
}

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkIdent
	tkNumber
	tkColon
	tkComma
	tkPlus
	tkMinus
	tkStar
	tkSlash
	tkLParen
	tkRParen
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src  []rune
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

func (l *lexer) errf(line, col int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) next() (token, *ParseError) {
	l.skipSpace()
	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return token{kind: tkEOF, line: line, col: col}, nil
	}
	r := l.peek()
	switch {
	case isIdentStart(r):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			l.advance()
		}
		return token{kind: tkIdent, text: string(l.src[start:l.pos]), line: line, col: col}, nil
	case unicode.IsDigit(r):
		start := l.pos
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			l.advance()
			if !unicode.IsDigit(l.peek()) {
				return token{}, l.errf(l.line, l.col, "expected digit after decimal point")
			}
			for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		return token{kind: tkNumber, text: string(l.src[start:l.pos]), line: line, col: col}, nil
	}
	l.advance()
	switch r {
	case ':':
		return token{kind: tkColon, text: ":", line: line, col: col}, nil
	case ',':
		return token{kind: tkComma, text: ",", line: line, col: col}, nil
	case '+':
		return token{kind: tkPlus, text: "+", line: line, col: col}, nil
	case '-':
		return token{kind: tkMinus, text: "-", line: line, col: col}, nil
	case '*':
		return token{kind: tkStar, text: "*", line: line, col: col}, nil
	case '/':
		return token{kind: tkSlash, text: "/", line: line, col: col}, nil
	case '(':
		return token{kind: tkLParen, text: "(", line: line, col: col}, nil
	case ')':
		return token{kind: tkRParen, text: ")", line: line, col: col}, nil
	}
	return token{}, l.errf(line, col, "unexpected character %q", string(r))
}
