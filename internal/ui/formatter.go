package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"avatx/internal/config"
	"avatx/internal/domain"
	"avatx/internal/tree"
)

var (
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	gray   = color.New(color.FgHiBlack)
)

// Formatter formats and displays output
type Formatter struct {
	config *config.Config
	out    io.Writer
}

// NewFormatter creates a new Formatter writing to out. Paths under the
// working directory are shown relative to it.
func NewFormatter(cfg *config.Config, out io.Writer) *Formatter {
	return &Formatter{config: cfg, out: out}
}

// PrintTree prints the loaded test tree. Tests whose ids are in failed are
// marked with [F] in red (from the last run).
func (f *Formatter) PrintTree(root *tree.Suite, failed map[string]struct{}) {
	tests := root.Tests()
	green.Fprintf(f.out, "Found %d test(s) in %d configuration(s):\n", len(tests), len(root.Children))
	for i, child := range root.Children {
		f.printNode(child, "", i == len(root.Children)-1, failed)
	}
}

func (f *Formatter) printNode(n tree.Node, prefix string, last bool, failed map[string]struct{}) {
	connector, next := "├── ", "│   "
	if last {
		connector, next = "└── ", "    "
	}

	switch n := n.(type) {
	case *tree.Suite:
		label := n.Label
		if len(n.Children) > 0 {
			if _, ok := n.Children[0].(*tree.Test); ok {
				yellow.Fprintf(f.out, "%s%s%s\n", prefix, connector, label)
			} else {
				cyan.Fprintf(f.out, "%s%s%s\n", prefix, connector, label)
			}
		} else {
			cyan.Fprintf(f.out, "%s%s%s ", prefix, connector, label)
			red.Fprintln(f.out, "(no test cases found)")
		}
		for i, child := range n.Children {
			f.printNode(child, prefix+next, i == len(n.Children)-1, failed)
		}
	case *tree.Test:
		fmt.Fprintf(f.out, "%s%s%s", prefix, connector, n.Label)
		if _, ok := failed[n.ID]; ok {
			fmt.Fprint(f.out, " "+red.Sprint("[F]"))
		}
		fmt.Fprintln(f.out)
	}
}

// PrintSummary prints the statistics of a run and, when some tests failed,
// a tree of the failures grouped by file.
func (f *Formatter) PrintSummary(output *domain.RunOutput) {
	meta := output.Meta

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Test Run Statistics")
	t.AppendRows([]table.Row{
		{"Total Tests", meta.Total},
		{"Passed", green.Sprint(meta.Passed)},
		{"Failed", red.Sprint(meta.Failed)},
		{"Errored", red.Sprint(meta.Errored)},
		{"Skipped", yellow.Sprint(meta.Skipped)},
		{"Configurations", meta.Configs},
		{"Duration", fmt.Sprintf("%.2fs", meta.DurationSeconds)},
		{"Timestamp", meta.Timestamp},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignLeft}, {Number: 2, Align: text.AlignRight}})
	t.Render()

	fmt.Fprintln(f.out)
	if meta.Failed+meta.Errored == 0 {
		green.Fprintln(f.out, "✓ All tests passed!")
		return
	}
	red.Fprintf(f.out, "✗ %d test(s) failed, %d errored\n\n", meta.Failed, meta.Errored)
	f.printFailures(output.Details)
}

// printFailures prints failures grouped under their files, files sorted by path.
func (f *Formatter) printFailures(failures []domain.TestFailure) {
	byFile := make(map[string][]domain.TestFailure)
	for _, failure := range failures {
		byFile[failure.FilePath] = append(byFile[failure.FilePath], failure)
	}
	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	for i, file := range files {
		connector, next := "├── ", "│   "
		if i == len(files)-1 {
			connector, next = "└── ", "    "
		}
		yellow.Fprintf(f.out, "%s%s\n", connector, f.rel(file))
		cases := byFile[file]
		for j, failure := range cases {
			caseConnector := "├── "
			if j == len(cases)-1 {
				caseConnector = "└── "
			}
			fmt.Fprintf(f.out, "%s%s%s", next, caseConnector, red.Sprint(failure.TestName))
			if failure.State != domain.StateFailed {
				fmt.Fprint(f.out, " "+gray.Sprintf("(%s)", failure.State))
			}
			fmt.Fprintln(f.out)
		}
	}
}

// PrintState prints one test state change of a streaming run.
func (f *Formatter) PrintState(label string, state domain.State) {
	switch state {
	case domain.StatePassed:
		green.Fprintf(f.out, "  ✓ %s\n", label)
	case domain.StateFailed, domain.StateErrored:
		red.Fprintf(f.out, "  ✗ %s (%s)\n", label, state)
	case domain.StateSkipped:
		gray.Fprintf(f.out, "  - %s\n", label)
	}
}

// PrintReady tells where a debugger can attach.
func (f *Formatter) PrintReady(label string, port uint16) {
	cyan.Fprintf(f.out, "▶ Debugger waiting on 127.0.0.1:%d (%s)\n", port, label)
}

// Warn prints a highlighted notice line.
func (f *Formatter) Warn(format string, args ...any) {
	yellow.Fprintf(f.out, format+"\n", args...)
}

// rel returns path relative to the working directory when it lies inside.
func (f *Formatter) rel(path string) string {
	if f.config == nil || f.config.Cwd == "" {
		return path
	}
	if rel, err := filepath.Rel(f.config.Cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}
