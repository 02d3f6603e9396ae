package maincmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mna/mainer"

	"github.com/azathrix/minipanda/lang/interp"
	"github.com/azathrix/minipanda/lang/machine"
)

// Repl starts an interactive session. Declarations persist in the session's
// root scope; the value of each evaluated line is printed.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, _ []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return printError(stdio, err)
	}
	defer rl.Close()

	fmt.Fprintf(stdio.Stdout, "%s %s (exit or ctrl-d to quit)\n", binName, c.BuildVersion)

	i := interp.New()
	m := i.Machine()
	m.Stdout, m.Stderr, m.Stdin = stdio.Stdout, stdio.Stderr, stdio.Stdin
	m.MaxSteps = c.limits.MaxSteps

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return printError(stdio, err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}

		// try the line as an expression first so its value prints; fall back
		// to running it as a statement
		res, err := i.Eval(line, nil, "", false)
		if err != nil {
			res, err = i.Run([]byte(line), "", false)
		}
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			continue
		}
		if _, isNull := res.(machine.NullType); !isNull {
			fmt.Fprintln(stdio.Stdout, res.String())
		}
	}
}
