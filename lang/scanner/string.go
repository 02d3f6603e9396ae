package scanner

import (
	"strings"

	"github.com/azathrix/minipanda/lang/token"
)

// stringLit scans a string literal; the opening quote has already been
// consumed. Interpolations "...{expr}..." are pre-tokenized here: the raw
// sub-source of each expression is captured verbatim and handed to the parser
// for reparsing, so nested strings and braces inside the expression must be
// tracked to find the closing brace.
func (s *Scanner) stringLit(line, col int) (token.Token, error) {
	var (
		sb    strings.Builder
		parts []token.StringPart
	)

	flush := func() {
		if sb.Len() > 0 {
			parts = append(parts, token.StringPart{Text: sb.String()})
			sb.Reset()
		}
	}

	for {
		if s.eof() || s.peek() == '\n' {
			return token.Token{}, s.errorf(line, col, "unterminated string")
		}
		b := s.advance()
		switch b {
		case '"':
			if len(parts) == 0 {
				tok := s.makeToken(token.STRING, sb.String(), line, col)
				tok.Str = sb.String()
				return tok, nil
			}
			flush()
			tok := s.makeToken(token.STRING, "", line, col)
			tok.Parts = parts
			return tok, nil

		case '\\':
			if s.eof() {
				return token.Token{}, s.errorf(line, col, "unterminated string")
			}
			esc := s.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '{':
				sb.WriteByte('{')
			default:
				return token.Token{}, s.errorf(s.line, s.col-2, "invalid escape '\\%c'", esc)
			}

		case '{':
			exprLine, exprCol := s.line, s.col-1
			raw, err := s.interpExpr(line, col)
			if err != nil {
				return token.Token{}, err
			}
			flush()
			parts = append(parts, token.StringPart{Expr: raw, Line: exprLine, Col: exprCol})

		default:
			sb.WriteByte(b)
		}
	}
}

// interpExpr captures the raw source of an interpolated expression up to (and
// excluding) the matching closing brace, which is consumed.
func (s *Scanner) interpExpr(strLine, strCol int) (string, error) {
	start := s.off
	depth := 1
	for {
		if s.eof() || s.peek() == '\n' {
			return "", s.errorf(strLine, strCol, "unterminated interpolation in string")
		}
		b := s.advance()
		switch b {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(s.src[start : s.off-1]), nil
			}
		case '"':
			// nested string inside the expression: skip to its closing quote
			for {
				if s.eof() || s.peek() == '\n' {
					return "", s.errorf(strLine, strCol, "unterminated string")
				}
				c := s.advance()
				if c == '\\' && !s.eof() {
					s.advance()
					continue
				}
				if c == '"' {
					break
				}
			}
		}
	}
}
