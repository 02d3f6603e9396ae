package scanner

import (
	"strconv"

	"github.com/azathrix/minipanda/lang/token"
)

// number scans a decimal integer or fractional literal. The leading digit has
// already been consumed.
func (s *Scanner) number(line, col int) (token.Token, error) {
	start := s.off - 1
	for !s.eof() && isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance() // the dot
		for !s.eof() && isDigit(s.peek()) {
			s.advance()
		}
	}
	lexeme := string(s.src[start:s.off])
	if !s.eof() && isAlpha(s.peek()) {
		return token.Token{}, s.errorf(line, col, "malformed number: %s%c", lexeme, s.peek())
	}

	n, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return token.Token{}, s.errorf(line, col, "malformed number: %s", lexeme)
	}
	tok := s.makeToken(token.NUMBER, lexeme, line, col)
	tok.Num = n
	return tok, nil
}
