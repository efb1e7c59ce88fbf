package runner

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

// FindTitles extracts the test titles of a file with pattern's first group,
// deduplicated and sorted.
func FindTitles(path string, pattern *regexp.Regexp) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}

	seen := make(map[string]bool)
	var titles []string
	for _, match := range pattern.FindAllStringSubmatch(string(content), -1) {
		if len(match) < 2 || match[1] == "" || seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		titles = append(titles, match[1])
	}
	sort.Strings(titles)
	return titles, nil
}
