package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/azathrix/minipanda/lang/scanner"
	"github.com/azathrix/minipanda/lang/token"
)

// Tokenize prints the token stream of the given source files.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, files []string) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return printError(stdio, err)
		}

		b, err := os.ReadFile(file)
		if err != nil {
			return printError(stdio, err)
		}
		toks, err := scanner.Scan(b, file)
		if err != nil {
			return printError(stdio, err)
		}
		for _, tok := range toks {
			if tok.Type == token.NEWLINE {
				continue
			}
			fmt.Fprintf(stdio.Stdout, "%s:%d:%d: %s\n", file, tok.Line, tok.Col, tok)
		}
	}
	return nil
}
