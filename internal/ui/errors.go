package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"avatx/internal/domain"
	"avatx/internal/storage"
)

// excerptLines is how many source lines are shown from the test's declaration.
const excerptLines = 12

// FailureViewer displays test failures in an interactive TUI
type FailureViewer struct {
	storage storage.Storage
}

// NewFailureViewer creates a new FailureViewer that saves resolved marks to st.
func NewFailureViewer(st storage.Storage) *FailureViewer {
	return &FailureViewer{storage: st}
}

// View displays test failures in an interactive TUI
func (fv *FailureViewer) View(results *domain.RunOutput) error {
	if len(results.Details) == 0 {
		green.Println("✓ No test failures found!")
		return nil
	}

	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	for i := range results.Details {
		list.AddItem(listItemText(results.Details[i], i), "", 0, nil)
	}
	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)
	statusView := tview.NewTextView().
		SetDynamicColors(true)

	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsView, 0, 1, false)
	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)
	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(statusView, 1, 0, false)

	updateHeader := func() {
		headerView.SetText(headerText(results))
	}
	updateDetails := func() {
		index := list.GetCurrentItem()
		if index < 0 || index >= len(results.Details) {
			return
		}
		failure := results.Details[index]
		statsView.SetText(formatFailureStats(failure, index+1))
		detailsView.SetText(formatFailureDetails(failure)).ScrollToBeginning()
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyRune:
			if event.Rune() != 'r' && event.Rune() != 'R' {
				return event
			}
			index := list.GetCurrentItem()
			if index < 0 || index >= len(results.Details) {
				return nil
			}
			results.Details[index].Resolved = !results.Details[index].Resolved
			list.SetItemText(index, listItemText(results.Details[index], index), "")
			updateHeader()
			if err := fv.storage.SaveOutput(results); err != nil {
				statusView.SetText(fmt.Sprintf("[red]save failed: %v", tview.Escape(err.Error())))
			} else {
				statusView.SetText("")
			}
			return nil
		}
		return event
	})
	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		}
		return event
	})
	list.SetChangedFunc(func(int, string, string, rune) { updateDetails() })

	updateHeader()
	updateDetails()

	if err := app.SetRoot(layout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func listItemText(failure domain.TestFailure, index int) string {
	name := tview.Escape(failure.TestName)
	if name == "" {
		name = fmt.Sprintf("Test %d", index+1)
	}
	if failure.Resolved {
		return fmt.Sprintf("[gray]✓ [yellow]%d.[gray] %s[white]", index+1, name)
	}
	return fmt.Sprintf("[yellow]%d.[white] %s", index+1, name)
}

func headerText(results *domain.RunOutput) string {
	return fmt.Sprintf(" Test Failures (%d total, %d unresolved) | ↑↓ navigate, [yellow]R[white] mark resolved, → details, ← back, Ctrl+C exit ",
		len(results.Details), len(results.Unresolved()))
}

// formatFailureStats formats the stats header for a test failure
func formatFailureStats(failure domain.TestFailure, number int) string {
	path := failure.FilePath
	if path == "" {
		path = "Unknown path"
	}
	name := failure.TestName
	if name == "" {
		name = fmt.Sprintf("Test %d", number)
	}
	return fmt.Sprintf("[cyan]path:[white] [yellow]%s[white]::[yellow]%s[white]\n[cyan]state:[white] %s\n",
		tview.Escape(path), tview.Escape(name), failure.State)
}

// formatFailureDetails formats a test failure for display using tview color tags
func formatFailureDetails(failure domain.TestFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[red]✗ Test: %s[white]\n\n", tview.Escape(failure.TestName))
	fmt.Fprintf(&b, "[cyan]File:[white] %s\n", tview.Escape(failure.FilePath))
	if failure.Config != "" {
		fmt.Fprintf(&b, "[cyan]Configuration:[white] %s\n", tview.Escape(failure.Config))
	}
	fmt.Fprintf(&b, "[cyan]Id:[white] %s\n\n", failure.ID)

	line, excerpt := findDeclaration(failure.FilePath, failure.TestName)
	if line > 0 {
		fmt.Fprintf(&b, "[yellow]Location: %s:%d[white]\n", tview.Escape(failure.FilePath), line)
		for i, src := range excerpt {
			fmt.Fprintf(&b, "[gray]%5d[white] %s\n", line+i, tview.Escape(src))
		}
	}
	return b.String()
}

// findDeclaration returns the 1-based line of the first mention of title in
// the file and the source lines from there, or 0 when it cannot be found.
func findDeclaration(path, title string) (int, []string) {
	if path == "" || title == "" {
		return 0, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, nil
	}
	defer file.Close()

	var (
		line    int
		found   int
		excerpt []string
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if found == 0 && strings.Contains(text, title) {
			found = line
		}
		if found > 0 {
			excerpt = append(excerpt, text)
			if len(excerpt) == excerptLines {
				break
			}
		}
	}
	return found, excerpt
}
