package suite

import (
	"slices"

	"avatx/internal/domain"
	"avatx/internal/entity"
)

// Selection is a plan resolved against one configuration.
type Selection struct {
	// All runs the configuration unfiltered.
	All bool
	// Files are absolute paths, deduplicated, in request order.
	Files []string
	// Titles filter the tests of Files. Empty means whole files.
	Titles []string
}

// Resolve narrows ids to the entities owned by c. It returns false when
// none of them belongs to c.
//
// File ids select a whole file and test ids add a title filter. When both
// kinds are mixed, the titles of the whole files join the filter so those
// files still run every test.
func Resolve(c *entity.ConfigInfo, ids []string) (Selection, bool) {
	if slices.Contains(ids, domain.RootID) || slices.Contains(ids, c.ID) {
		return Selection{All: true}, true
	}

	var (
		sel   Selection
		files = map[string]bool{}
		seen  = map[string]bool{}
		whole []*entity.FileInfo
	)
	addFile := func(f *entity.FileInfo) {
		if p := f.Path(); !files[p] {
			files[p] = true
			sel.Files = append(sel.Files, p)
		}
	}
	addTitle := func(title string) {
		if !seen[title] {
			seen[title] = true
			sel.Titles = append(sel.Titles, title)
		}
	}

	for _, id := range ids {
		switch domain.KindOf(id) {
		case domain.KindFile:
			if f, ok := c.File(id); ok {
				addFile(f)
				whole = append(whole, f)
			}
		case domain.KindTest:
			if t, ok := c.Test(id); ok {
				addFile(t.File)
				addTitle(t.Title)
			}
		}
	}
	if len(sel.Files) == 0 {
		return Selection{}, false
	}
	if len(sel.Titles) > 0 {
		for _, f := range whole {
			for _, t := range f.Tests() {
				addTitle(t.Title)
			}
		}
	}
	return sel, true
}

// titlesIn keeps the titles of sel that belong to f. A nil result means the
// whole file.
func (sel Selection) titlesIn(f *entity.FileInfo) []string {
	if len(sel.Titles) == 0 {
		return nil
	}
	var out []string
	for _, t := range f.Tests() {
		if slices.Contains(sel.Titles, t.Title) && !slices.Contains(out, t.Title) {
			out = append(out, t.Title)
		}
	}
	return out
}
