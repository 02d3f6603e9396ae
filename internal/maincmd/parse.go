package maincmd

import (
	"context"
	"os"

	"github.com/mna/mainer"

	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/parser"
)

// Parse prints the abstract syntax tree of the given source files.
func (c *Cmd) Parse(ctx context.Context, stdio mainer.Stdio, files []string) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return printError(stdio, err)
		}

		b, err := os.ReadFile(file)
		if err != nil {
			return printError(stdio, err)
		}
		prog, err := parser.Parse(b, file)
		if err != nil {
			return printError(stdio, err)
		}
		ast.Print(stdio.Stdout, prog)
	}
	return nil
}
