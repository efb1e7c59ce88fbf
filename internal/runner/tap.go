package runner

import (
	"regexp"
	"strings"

	"avatx/internal/domain"
)

// TAPResult is one test point of TAP output.
type TAPResult struct {
	Title string
	State domain.State
	// Message holds the diagnostics that follow a failing point.
	Message string
}

var testPointPattern = regexp.MustCompile(`^(not ok|ok)\b(?:\s+\d+)?(?:\s*-)?\s*(.*?)\s*(?:#\s*(?i:(skip|todo))\b.*)?$`)

// ParseTAP extracts the test points of TAP output in order.
func ParseTAP(output string) []TAPResult {
	var results []TAPResult
	lines := strings.Split(output, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		match := testPointPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		r := TAPResult{Title: match[2], State: domain.StatePassed}
		switch {
		case match[3] != "":
			r.State = domain.StateSkipped
		case match[1] == "not ok":
			r.State = domain.StateFailed
		}

		if r.State == domain.StateFailed {
			var diag []string
			j := i + 1
			for ; j < len(lines); j++ {
				next := strings.TrimRight(lines[j], "\r")
				if testPointPattern.MatchString(next) || !isDiagnostic(next) {
					break
				}
				diag = append(diag, next)
			}
			r.Message = trimDiagnostics(diag)
			i = j - 1
		}
		results = append(results, r)
	}
	return results
}

// isDiagnostic reports whether line belongs to the block after a test point:
// an indented YAML block or a comment.
func isDiagnostic(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "#")
}

func trimDiagnostics(lines []string) string {
	var out []string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "---" || t == "..." {
			continue
		}
		out = append(out, strings.TrimPrefix(strings.TrimPrefix(l, "  "), "# "))
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
