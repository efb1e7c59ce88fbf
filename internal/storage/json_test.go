package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/config"
	"avatx/internal/domain"
)

func newStorage(t *testing.T) *JSONStorage {
	cfg := config.New()
	cfg.Cwd = t.TempDir()
	s := NewJSONStorage(cfg)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestJSONStorage_SaveAndLoad(t *testing.T) {
	s := newStorage(t)

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoResults)

	results := []domain.TestResult{
		{ID: "t1", Title: "adds", State: domain.StatePassed},
		{ID: "t2", Title: "fails", File: "/repo/a.js", State: domain.StateFailed},
	}
	require.NoError(t, s.Save(results, 1, 2*time.Second))
	assert.FileExists(t, filepath.Join(s.cfg.Cwd, config.DefaultResultsFile))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, out.Meta.Total)
	assert.Equal(t, 1, out.Meta.Failed)
	assert.Equal(t, "2024-05-01T10:00:00Z", out.Meta.Timestamp)
	require.Len(t, out.Details, 1)
	assert.Equal(t, "fails", out.Details[0].TestName)

	out.Details[0].Resolved = true
	require.NoError(t, s.SaveOutput(out))
	again, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, again.Unresolved())
}
