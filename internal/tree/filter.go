package tree

import (
	"path/filepath"
	"strings"
)

// MatchName reports whether name matches pattern. Patterns without wildcards
// match as substrings; with * or ? they match as a file name glob, or failing
// that when every literal part between stars occurs in name.
func MatchName(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(name, pattern)
	}
	if matched, err := filepath.Match(pattern, name); err == nil && matched {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	nonEmpty := false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			continue
		}
		nonEmpty = true
		if !strings.Contains(name, part) {
			return false
		}
	}
	return nonEmpty
}

// Filter returns the plan ids selecting what pattern names: files whose base
// name matches, and tests whose title matches in files that do not. An empty
// pattern selects the root.
func Filter(root *Suite, pattern string) []string {
	if pattern == "" {
		return []string{root.ID}
	}
	var ids []string
	var walk func(s *Suite)
	walk = func(s *Suite) {
		for _, n := range s.Children {
			switch n := n.(type) {
			case *Suite:
				if n.File != "" && isFile(n) && MatchName(pattern, filepath.Base(n.File)) {
					ids = append(ids, n.ID)
					continue
				}
				walk(n)
			case *Test:
				if MatchName(pattern, n.Label) {
					ids = append(ids, n.ID)
				}
			}
		}
	}
	walk(root)
	return ids
}

// isFile reports whether s holds tests directly.
func isFile(s *Suite) bool {
	for _, n := range s.Children {
		if _, ok := n.(*Test); ok {
			return true
		}
	}
	return false
}

// Select returns the tests the plan ids cover, each once, in tree order.
func (s *Suite) Select(ids []string) []*Test {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*Test
	var walk func(n Node, selected bool)
	walk = func(n Node, selected bool) {
		selected = selected || want[n.NodeID()]
		switch n := n.(type) {
		case *Test:
			if selected {
				out = append(out, n)
			}
		case *Suite:
			for _, child := range n.Children {
				walk(child, selected)
			}
		}
	}
	walk(s, false)
	return out
}
