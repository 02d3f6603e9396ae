package parser_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/azathrix/minipanda/internal/filetest"
	"github.com/azathrix/minipanda/lang/ast"
	"github.com/azathrix/minipanda/lang/parser"
)

// TestParseGolden parses the testdata scripts and diffs the printed AST
// against the .want golden files. Run with -test.update-golden to refresh.
func TestParseGolden(t *testing.T) {
	for _, file := range filetest.SourceFiles(t, "testdata", ".panda") {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			b, err := os.ReadFile(file)
			require.NoError(t, err)
			prog, err := parser.Parse(b, file)
			require.NoError(t, err)

			var sb strings.Builder
			ast.Print(&sb, prog)
			filetest.DiffGolden(t, file, sb.String())
		})
	}
}
