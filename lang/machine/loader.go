package machine

import (
	"os"
	"path/filepath"
	"strings"
)

// A LoadFunc resolves a module path to its source or compiled bytes and the
// full path used for error reporting. Returning nil bytes with a nil error
// signals "not found".
type LoadFunc func(path string) ([]byte, string, error)

// moduleExtensions are probed in order by the default loader.
var moduleExtensions = []string{".mpbc", ".panda"}

// DefaultLoader resolves module paths against the given root directory. It
// refuses absolute paths and parent traversal, and probes the known
// extensions in order.
func DefaultLoader(root string) LoadFunc {
	return func(path string) ([]byte, string, error) {
		if filepath.IsAbs(path) || strings.Contains(path, "..") {
			return nil, "", nil
		}
		for _, ext := range moduleExtensions {
			full := filepath.Join(root, path+ext)
			b, err := os.ReadFile(full)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, "", err
			}
			return b, full, nil
		}
		return nil, "", nil
	}
}
