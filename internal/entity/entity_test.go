package entity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/domain"
)

func newLoadedConfig(reg *Registry) (*ConfigInfo, *FileInfo, *FileInfo) {
	c := reg.NewConfig("ava.config.js")
	c.Prefix = "/repo/test"
	f0 := c.AddFile("t0.js")
	f0.AddTest("a")
	f0.AddTest("b")
	f1 := c.AddFile("sub/t1.js")
	f1.AddTest("c")
	return c, f0, f1
}

func TestRegistry_IDsAreTagged(t *testing.T) {
	reg := NewRegistry()
	c, f0, _ := newLoadedConfig(reg)

	assert.Equal(t, domain.KindConfig, domain.KindOf(c.ID))
	assert.Equal(t, domain.KindFile, domain.KindOf(f0.ID))
	assert.Equal(t, domain.KindTest, domain.KindOf(f0.Tests()[0].ID))
	assert.Equal(t, 1, reg.Len(domain.KindConfig))
	assert.Equal(t, 2, reg.Len(domain.KindFile))
	assert.Equal(t, 3, reg.Len(domain.KindTest))
}

func TestConfigInfo_Lookups(t *testing.T) {
	reg := NewRegistry()
	c, f0, f1 := newLoadedConfig(reg)

	id, ok := c.FileID(filepath.Join("/repo/test", "sub/t1.js"))
	require.True(t, ok)
	assert.Equal(t, f1.ID, id)

	id, ok = c.TestID("b", "/repo/test/t0.js")
	require.True(t, ok)
	assert.Equal(t, f0.Tests()[1].ID, id)

	_, ok = c.TestID("c", "/repo/test/t0.js")
	assert.False(t, ok, "title lookups are scoped to the file")

	assert.True(t, c.Owns(c.ID))
	assert.True(t, c.Owns(f1.ID))
	assert.True(t, c.Owns(f1.Tests()[0].ID))
	assert.False(t, c.Owns("f0"))
}

func TestConfigInfo_DisposeReleasesIDs(t *testing.T) {
	reg := NewRegistry()
	c, f0, _ := newLoadedConfig(reg)
	ids := []string{c.ID, f0.ID, f0.Tests()[0].ID}

	interrupted := false
	release := c.Activate(func() { interrupted = true })

	c.Dispose()
	c.Dispose()
	release()
	assert.True(t, interrupted, "dispose interrupts the active run")

	for _, id := range ids {
		assert.False(t, reg.Exists(id), id)
	}
	assert.True(t, c.Disposed())
	assert.Equal(t, 0, reg.Len(domain.KindTest))
}

func TestRegistry_SameNameNeverCollidesWhileLive(t *testing.T) {
	reg := NewRegistry()

	var live []*ConfigInfo
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		c := reg.NewConfig("ava.config.js")
		require.False(t, seen[c.ID], "duplicate live id %s", c.ID)
		seen[c.ID] = true
		live = append(live, c)
	}

	first := live[0].ID
	for _, c := range live {
		c.Dispose()
	}
	assert.Equal(t, 0, reg.Len(domain.KindConfig))

	again := reg.NewConfig("ava.config.js")
	assert.Equal(t, first, again.ID, "released id is issued again for the same name")
}
