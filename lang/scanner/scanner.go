// Package scanner implements the lexer that turns MiniPanda source text into
// a stream of tokens for the parser to consume.
package scanner

import (
	"fmt"

	"github.com/azathrix/minipanda/lang/token"
)

// Error is a lexical error with its source position.
type Error struct {
	Msg  string
	File string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

// Scan tokenizes src and returns the complete token list, ending with an EOF
// token. The returned error, if non-nil, is an *Error.
func Scan(src []byte, filename string) ([]token.Token, error) {
	s := &Scanner{src: src, file: filename, line: 1, col: 1}
	var toks []token.Token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

// Scanner tokenizes a single source buffer. The zero value is not usable,
// create one through Scan.
type Scanner struct {
	src  []byte
	file string

	off  int // offset of the next unread byte
	line int
	col  int
}

func (s *Scanner) errorf(line, col int, format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...), File: s.file, Line: line, Col: col}
}

func (s *Scanner) eof() bool { return s.off >= len(s.src) }

// peek returns the next unread byte without consuming it, 0 at EOF.
func (s *Scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.off]
}

func (s *Scanner) peekAt(n int) byte {
	if s.off+n >= len(s.src) {
		return 0
	}
	return s.src[s.off+n]
}

func (s *Scanner) advance() byte {
	b := s.src[s.off]
	s.off++
	if b == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return b
}

// match consumes the next byte if it equals b.
func (s *Scanner) match(b byte) bool {
	if s.eof() || s.src[s.off] != b {
		return false
	}
	s.advance()
	return true
}

func (s *Scanner) makeToken(typ token.Type, lexeme string, line, col int) token.Token {
	return token.Token{Type: typ, Lexeme: lexeme, Line: line, Col: col}
}

// next scans and returns the next token. Whitespace is skipped; line
// terminators produce a NEWLINE token because the parser is newline-sensitive
// for statement termination.
func (s *Scanner) next() (token.Token, error) {
	s.skipBlanks()

	line, col := s.line, s.col
	if s.eof() {
		return s.makeToken(token.EOF, "", line, col), nil
	}

	b := s.advance()
	switch {
	case b == '\n':
		return s.makeToken(token.NEWLINE, "\n", line, col), nil

	case isDigit(b):
		return s.number(line, col)

	case isAlpha(b):
		start := s.off - 1
		for !s.eof() && isAlphaNum(s.peek()) {
			s.advance()
		}
		word := string(s.src[start:s.off])
		return s.makeToken(token.Lookup(word), word, line, col), nil

	case b == '"':
		return s.stringLit(line, col)
	}

	two := func(next byte, with, without token.Type) token.Token {
		if s.match(next) {
			return s.makeToken(with, string(b)+string(next), line, col)
		}
		return s.makeToken(without, string(b), line, col)
	}

	switch b {
	case '+':
		if s.match('+') {
			return s.makeToken(token.PLUSPLUS, "++", line, col), nil
		}
		return two('=', token.PLUSEQ, token.PLUS), nil
	case '-':
		if s.match('-') {
			return s.makeToken(token.MINUSMINUS, "--", line, col), nil
		}
		return two('=', token.MINUSEQ, token.MINUS), nil
	case '*':
		return two('=', token.STAREQ, token.STAR), nil
	case '/':
		return two('=', token.SLASHEQ, token.SLASH), nil
	case '%':
		return two('=', token.PERCENTEQ, token.PERCENT), nil
	case '=':
		if s.match('>') {
			return s.makeToken(token.ARROW, "=>", line, col), nil
		}
		return two('=', token.EQL, token.EQ), nil
	case '!':
		return two('=', token.NEQ, token.BANG), nil
	case '<':
		if s.match('<') {
			return s.makeToken(token.LTLT, "<<", line, col), nil
		}
		return two('=', token.LE, token.LT), nil
	case '>':
		if s.match('>') {
			return s.makeToken(token.GTGT, ">>", line, col), nil
		}
		return two('=', token.GE, token.GT), nil
	case '&':
		return two('&', token.ANDAND, token.AMPERSAND), nil
	case '|':
		return two('|', token.OROR, token.PIPE), nil
	case '^':
		return s.makeToken(token.CIRCUMFLEX, "^", line, col), nil
	case '~':
		return s.makeToken(token.TILDE, "~", line, col), nil
	case '?':
		switch {
		case s.match('?'):
			return s.makeToken(token.QQUESTION, "??", line, col), nil
		case s.match('.'):
			return s.makeToken(token.QDOT, "?.", line, col), nil
		case s.match('['):
			return s.makeToken(token.QLBRACK, "?[", line, col), nil
		}
		return s.makeToken(token.QUESTION, "?", line, col), nil
	case '.':
		if s.peek() == '.' && s.peekAt(1) == '.' {
			s.advance()
			s.advance()
			return s.makeToken(token.ELLIPSIS, "...", line, col), nil
		}
		return s.makeToken(token.DOT, ".", line, col), nil
	case ',':
		return s.makeToken(token.COMMA, ",", line, col), nil
	case ':':
		return s.makeToken(token.COLON, ":", line, col), nil
	case ';':
		return s.makeToken(token.SEMI, ";", line, col), nil
	case '(':
		return s.makeToken(token.LPAREN, "(", line, col), nil
	case ')':
		return s.makeToken(token.RPAREN, ")", line, col), nil
	case '[':
		return s.makeToken(token.LBRACK, "[", line, col), nil
	case ']':
		return s.makeToken(token.RBRACK, "]", line, col), nil
	case '{':
		return s.makeToken(token.LBRACE, "{", line, col), nil
	case '}':
		return s.makeToken(token.RBRACE, "}", line, col), nil
	}

	return token.Token{}, s.errorf(line, col, "unexpected character %q", b)
}

// skipBlanks skips spaces, tabs, carriage returns and line comments, but not
// newlines.
func (s *Scanner) skipBlanks() {
	for !s.eof() {
		switch s.peek() {
		case ' ', '\t', '\r':
			s.advance()
		case '/':
			if s.peekAt(1) != '/' {
				return
			}
			for !s.eof() && s.peek() != '\n' {
				s.advance()
			}
		default:
			return
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }
