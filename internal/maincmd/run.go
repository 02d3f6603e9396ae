package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/azathrix/minipanda/lang/interp"
	"github.com/azathrix/minipanda/lang/machine"
)

// Run executes the given script or bytecode files, one fresh interpreter
// per file.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, files []string) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return printError(stdio, err)
		}

		i := interp.New()
		m := i.Machine()
		m.Stdout, m.Stderr, m.Stdin = stdio.Stdout, stdio.Stderr, stdio.Stdin
		m.MaxSteps = c.limits.MaxSteps

		var (
			res machine.Value
			err error
		)
		if c.limits.ModuleRoot != "" {
			// resolve imports against the configured root instead of the
			// script's directory
			m.Loader = machine.DefaultLoader(c.limits.ModuleRoot)
			var b []byte
			if b, err = os.ReadFile(file); err == nil {
				res, err = i.Run(b, "", false)
			}
		} else {
			res, err = i.RunFile(file)
		}
		if err != nil {
			return printError(stdio, err)
		}
		if _, isNull := res.(machine.NullType); !isNull {
			fmt.Fprintln(stdio.Stdout, res.String())
		}
	}
	return nil
}
