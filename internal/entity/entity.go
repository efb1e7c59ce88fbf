package entity

import (
	"path/filepath"
	"sync"

	"avatx/internal/domain"
)

// ConfigInfo is one loaded test configuration file.
type ConfigInfo struct {
	reg *Registry

	ID     string
	Name   string
	Prefix string

	mu       sync.Mutex
	files    []*FileInfo
	active   func()
	disposed bool

	// runLock keeps runs against this configuration one at a time.
	runLock sync.Mutex
}

// FileInfo is one test file of a ConfigInfo. Name is relative to the prefix.
type FileInfo struct {
	ID     string
	Name   string
	Config *ConfigInfo
	tests  []*TestInfo
}

// TestInfo is one test case. Titles are unique within a file only.
type TestInfo struct {
	ID    string
	Title string
	File  *FileInfo
}

// NewConfig registers a configuration named by its file path.
func (r *Registry) NewConfig(name string) *ConfigInfo {
	return &ConfigInfo{
		reg:  r,
		ID:   r.allocate(domain.KindConfig, name, tag(domain.KindConfig)),
		Name: name,
	}
}

// AddFile registers a file under c.
func (c *ConfigInfo) AddFile(name string) *FileInfo {
	f := &FileInfo{
		ID:     c.reg.allocate(domain.KindFile, c.ID+":"+name, tagWithLength(domain.KindFile, name)),
		Name:   name,
		Config: c,
	}
	c.mu.Lock()
	c.files = append(c.files, f)
	c.mu.Unlock()
	return f
}

// AddTest registers a test case under f.
func (f *FileInfo) AddTest(title string) *TestInfo {
	c := f.Config
	t := &TestInfo{
		ID:    c.reg.allocate(domain.KindTest, f.ID+":"+title, tag(domain.KindTest)),
		Title: title,
		File:  f,
	}
	c.mu.Lock()
	f.tests = append(f.tests, t)
	c.mu.Unlock()
	return t
}

// Path returns the file's path with the configuration prefix restored.
func (f *FileInfo) Path() string {
	if f.Config.Prefix == "" {
		return f.Name
	}
	return filepath.Join(f.Config.Prefix, f.Name)
}

// Tests returns a snapshot of the file's test cases in discovery order.
func (f *FileInfo) Tests() []*TestInfo {
	f.Config.mu.Lock()
	defer f.Config.mu.Unlock()
	return append([]*TestInfo(nil), f.tests...)
}

// Files returns a snapshot of the configuration's files in discovery order.
func (c *ConfigInfo) Files() []*FileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FileInfo(nil), c.files...)
}

// File looks a file up by id.
func (c *ConfigInfo) File(id string) (*FileInfo, bool) {
	for _, f := range c.Files() {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Test looks a test case up by id.
func (c *ConfigInfo) Test(id string) (*TestInfo, bool) {
	for _, f := range c.Files() {
		for _, t := range f.Tests() {
			if t.ID == id {
				return t, true
			}
		}
	}
	return nil, false
}

// Owns reports whether id designates c or one of its files or tests.
func (c *ConfigInfo) Owns(id string) bool {
	switch domain.KindOf(id) {
	case domain.KindConfig:
		return id == c.ID
	case domain.KindFile:
		_, ok := c.File(id)
		return ok
	case domain.KindTest:
		_, ok := c.Test(id)
		return ok
	}
	return false
}

// FileID returns the id of the file whose full path is path.
func (c *ConfigInfo) FileID(path string) (string, bool) {
	path = filepath.Clean(path)
	for _, f := range c.Files() {
		if filepath.Clean(f.Path()) == path {
			return f.ID, true
		}
	}
	return "", false
}

// TestID returns the id of the test titled title in the file at path.
func (c *ConfigInfo) TestID(title, path string) (string, bool) {
	path = filepath.Clean(path)
	for _, f := range c.Files() {
		if filepath.Clean(f.Path()) != path {
			continue
		}
		for _, t := range f.Tests() {
			if t.Title == title {
				return t.ID, true
			}
		}
	}
	return "", false
}

// Activate records the interrupt of the run currently holding c. It returns a
// release func that clears the handle.
func (c *ConfigInfo) Activate(interrupt func()) (release func()) {
	c.runLock.Lock()
	c.mu.Lock()
	c.active = interrupt
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		c.runLock.Unlock()
	}
}

// Interrupt stops the active run on c, if any.
func (c *ConfigInfo) Interrupt() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active()
	}
}

// Disposed reports whether Dispose has been called.
func (c *ConfigInfo) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose interrupts any active run and releases the ids of c and everything it owns.
func (c *ConfigInfo) Dispose() {
	c.Interrupt()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	files := c.files
	c.files = nil
	c.mu.Unlock()

	for _, f := range files {
		f.dispose()
	}
	c.reg.release(c.ID)
}

func (f *FileInfo) dispose() {
	f.Config.mu.Lock()
	tests := f.tests
	f.tests = nil
	f.Config.mu.Unlock()

	for _, t := range tests {
		f.Config.reg.release(t.ID)
	}
	f.Config.reg.release(f.ID)
}
