package runner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Scanner finds test files matching a set of globs.
type Scanner struct {
	skipDirs map[string]bool
}

// NewScanner creates a Scanner that never descends into skipDirs or hidden
// directories.
func NewScanner(skipDirs []string) *Scanner {
	skip := make(map[string]bool, len(skipDirs))
	for _, dir := range skipDirs {
		skip[dir] = true
	}
	return &Scanner{skipDirs: skip}
}

// Scan returns the absolute, sorted paths below root matching any of
// include and none of exclude.
func (s *Scanner) Scan(root string, include, exclude []string) ([]string, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("test root does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test root is not a directory: %s", root)
	}
	for _, p := range append(slices.Clone(include), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob %q", p)
		}
	}

	var files []string
	err = fs.WalkDir(os.DirFS(root), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != "." && (strings.HasPrefix(name, ".") || s.skipDirs[name]) {
				return fs.SkipDir
			}
			return nil
		}
		if matchAny(include, path) && !matchAny(exclude, path) {
			files = append(files, filepath.Join(root, filepath.FromSlash(path)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
