package lib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// NewDataReader wraps r with the decompressor named by the extension of name:
// .br, .gz, .xz or none.
func NewDataReader(name string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".br":
		return brotli.NewReader(r), nil
	case ".gz":
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", name, err)
		}
		return zr, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream %s: %w", name, err)
		}
		return xr, nil
	default:
		return r, nil
	}
}

// newDataFile closes the underlying file of a decoded stream.
type newDataFile struct {
	io.Reader
	file *os.File
}

func (f *newDataFile) Close() error { return f.file.Close() }

// OpenNewData opens a new-data file, decompressing by extension.
func OpenNewData(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open new data %s: %w", path, err)
	}
	r, err := NewDataReader(path, bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		file.Close()
		return nil, err
	}
	return &newDataFile{Reader: r, file: file}, nil
}
