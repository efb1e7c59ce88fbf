package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_TagsSource(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", &buf, false)
	t.Cleanup(func() { SetLevel("info") })

	log := For("queue")
	log.Info().Msg("hello")

	require.Contains(t, buf.String(), `"src":"queue"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	SetLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	EnableDebug(true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	EnableDebug(false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
