// Package filetest provides the shared helpers for file-driven golden
// tests: listing source files and diffing output against .want files.
package filetest

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var updateAll = flag.Bool("test.update-golden", false, "If set, rewrite the golden files with the current output.")

// SourceFiles returns the regular files in dir with the given extension.
func SourceFiles(t *testing.T, dir, ext string) []string {
	t.Helper()

	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	dents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var res []string
	for _, dent := range dents {
		if !dent.Type().IsRegular() {
			continue
		}
		if ext != "" && filepath.Ext(dent.Name()) != ext {
			continue
		}
		res = append(res, filepath.Join(dir, dent.Name()))
	}
	return res
}

// DiffGolden validates that output matches the golden file next to the
// source (source path + ".want"). With -test.update-golden it rewrites the
// golden file instead.
func DiffGolden(t *testing.T, sourceFile, output string) {
	t.Helper()

	goldFile := sourceFile + ".want"
	if *updateAll {
		if err := os.WriteFile(goldFile, []byte(output), 0o600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if patch := diff.Diff(string(wantb), output); patch != "" {
		t.Errorf("golden diff for %s:\n%s", sourceFile, patch)
	}
}
