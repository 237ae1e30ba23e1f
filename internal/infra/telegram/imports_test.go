package telegram

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"testing"
)

// Each blank-line separated import group must be sorted by path, as gofmt
// leaves it.
func TestImportGroupsAreSorted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		prevLine, prevPath := 0, ""
		for _, spec := range f.Imports {
			path, _ := strconv.Unquote(spec.Path.Value)
			line := fset.Position(spec.Pos()).Line
			if line == prevLine+1 && path < prevPath {
				t.Errorf("%s:%d: import %q sorted after %q", name, line, path, prevPath)
			}
			prevLine, prevPath = line, path
		}
	}
}
