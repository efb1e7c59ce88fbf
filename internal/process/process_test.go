package process

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnviron_Sorted(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, Environ(map[string]string{"B": "2", "A": "1"}))
	assert.Empty(t, Environ(nil))
}

func TestExec_HandshakeAndExit(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	var stdout bytes.Buffer
	p, err := Exec{}.Spawn(context.Background(), Options{
		Path:   sh,
		Args:   []string{"-c", `echo "1f90:$TOKEN" >&3; echo out; exit 3`},
		Env:    map[string]string{"TOKEN": "tok"},
		Stdout: &stdout,
	})
	require.NoError(t, err)

	line, err := bufio.NewReader(p.Handshake()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1f90:tok\n", line)

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.Equal(t, 3, p.ExitCode())
	assert.Equal(t, "out\n", stdout.String())
	assert.NoError(t, p.Kill())
}

func TestExec_Kill(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p, err := Exec{}.Spawn(context.Background(), Options{Path: sh, Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	require.NoError(t, p.Kill())

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process survived kill")
	}
	assert.Equal(t, -1, p.ExitCode())
}

func TestExec_EmptyPath(t *testing.T) {
	_, err := Exec{}.Spawn(context.Background(), Options{})
	assert.Error(t, err)
}
