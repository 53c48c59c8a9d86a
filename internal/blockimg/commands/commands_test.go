package commands_test

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
	"github.com/stretchr/testify/require"
)

const blockSize = 4096

// captureStdout redirects os.Stdout to an in-memory buffer while f runs and
// returns what was printed.
func captureStdout(f func()) (string, error) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	f()

	_ = w.Close()
	os.Stdout = oldStdout
	return <-outC, nil
}

// testConfig returns the default configuration with a private work dir.
func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := lib.DefaultConfig()
	cfg.WorkDir = filepath.Join(t.TempDir(), lib.WorkDirName)
	cfg.LogLevel = "error"
	return cfg
}

// filled returns n blocks each filled with fill.
func filled(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n*blockSize)
}

// writeFile writes content to name inside dir and returns the path.
func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// readBlocks returns blocks [first, last) of the image at path.
func readBlocks(t *testing.T, path string, first, last int) []byte {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return content[first*blockSize : last*blockSize]
}

// writePackage builds an OTA zip holding entries, storing names listed in stored.
func writePackage(t *testing.T, dir string, entries map[string][]byte, stored ...string) string {
	t.Helper()
	path := filepath.Join(dir, "ota.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	isStored := make(map[string]bool)
	for _, name := range stored {
		isStored[name] = true
	}
	zw := zip.NewWriter(f)
	for name, content := range entries {
		method := zip.Deflate
		if isStored[name] {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}
