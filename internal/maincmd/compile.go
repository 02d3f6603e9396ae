package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/azathrix/minipanda/lang/compiler"
	"github.com/azathrix/minipanda/lang/machine"
)

// Compile compiles the given script files and writes the MPBC bytecode next
// to each source file.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, files []string) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return printError(stdio, err)
		}

		b, err := os.ReadFile(file)
		if err != nil {
			return printError(stdio, err)
		}
		proto, err := machine.CompileSource(b, file)
		if err != nil {
			return printError(stdio, err)
		}
		out, err := compiler.Serialize(proto)
		if err != nil {
			return printError(stdio, err)
		}

		target := strings.TrimSuffix(file, ".panda") + ".mpbc"
		if err := os.WriteFile(target, out, 0o644); err != nil { //nolint:gosec
			return printError(stdio, err)
		}
		fmt.Fprintf(stdio.Stdout, "%s: %d bytes\n", target, len(out))
	}
	return nil
}

// Disasm compiles the given script files (or reads compiled ones) and
// prints the bytecode listing.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, files []string) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return printError(stdio, err)
		}

		b, err := os.ReadFile(file)
		if err != nil {
			return printError(stdio, err)
		}
		var proto *compiler.FuncProto
		if compiler.IsCompiled(b) {
			proto, err = compiler.Deserialize(b)
		} else {
			proto, err = machine.CompileSource(b, file)
		}
		if err != nil {
			return printError(stdio, err)
		}
		compiler.Disasm(stdio.Stdout, proto)
	}
	return nil
}
