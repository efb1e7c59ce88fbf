package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandshake(t *testing.T) {
	port, token, err := ParseHandshake("1f90:tok\n")
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), port)
	assert.Equal(t, "tok", token)

	assert.Equal(t, "1f90:tok", FormatHandshake(8080, "tok"))

	for _, bad := range []string{"", "1f90", ":tok", "1f90:", "zz:tok", "10000:tok"} {
		_, _, err := ParseHandshake(bad)
		assert.ErrorIs(t, err, ErrBadHandshake, bad)
	}
}
