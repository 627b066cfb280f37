package command

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags() {
	objPath, sendCube, appendNormals = "", false, false
}

func TestLoadPayload(t *testing.T) {
	t.Cleanup(resetFlags)

	resetFlags()
	_, _, err := loadPayload()
	assert.ErrorContains(t, err, "nothing to send")

	sendCube, objPath = true, "x.obj"
	_, _, err = loadPayload()
	assert.ErrorContains(t, err, "not both")

	resetFlags()
	sendCube = true
	p, source, err := loadPayload()
	require.NoError(t, err)
	assert.Equal(t, "cube", source)
	assert.Equal(t, 12, p.TriangleCount())

	resetFlags()
	objPath = filepath.Join(t.TempDir(), "tri.obj")
	require.NoError(t, os.WriteFile(objPath, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))
	p, _, err = loadPayload()
	require.NoError(t, err)
	assert.Equal(t, 1, p.TriangleCount())
}

func TestSendCommand_Cube(t *testing.T) {
	t.Cleanup(resetFlags)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan int, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		got <- len(data)
	}()

	rootCmd.SetArgs([]string{"send", "--cube", "--addr", ln.Addr().String()})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 12+(24+36)*4, <-got)
}
