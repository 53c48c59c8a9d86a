package lib

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Entry name suffixes of one partition inside an OTA package.
const (
	TransferListSuffix = ".transfer.list"
	NewDataSuffix      = ".new.dat"
	PatchDataSuffix    = ".patch.dat"
)

// newDataExtensions are tried in order after NewDataSuffix.
var newDataExtensions = []string{".br", ".gz", ".xz", ""}

// Package is an OTA zip holding block-based partition updates.
type Package struct {
	path  string
	file  *os.File
	files map[string]*zip.File
}

// OpenPackage opens an OTA zip.
func OpenPackage(path string) (*Package, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read package %s: %w", path, err)
	}

	p := &Package{path: path, file: file, files: make(map[string]*zip.File)}
	for _, f := range reader.File {
		p.files[f.Name] = f
	}
	return p, nil
}

// Close releases the package.
func (p *Package) Close() error { return p.file.Close() }

// Partitions lists the partitions that have a transfer list, sorted.
func (p *Package) Partitions() []string {
	var names []string
	for name := range p.files {
		if strings.HasSuffix(name, TransferListSuffix) && !strings.Contains(name, "/") {
			names = append(names, strings.TrimSuffix(name, TransferListSuffix))
		}
	}
	sort.Strings(names)
	return names
}

// ReadTransferList returns the transfer list text of partition.
func (p *Package) ReadTransferList(partition string) (string, error) {
	data, err := p.readEntry(partition + TransferListSuffix)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadPatchData returns the patch blob of partition. A missing entry is an
// empty blob, since full updates ship none.
func (p *Package) ReadPatchData(partition string) ([]byte, error) {
	if _, ok := p.files[partition+PatchDataSuffix]; !ok {
		return nil, nil
	}
	return p.readEntry(partition + PatchDataSuffix)
}

// OpenNewData returns the decoded new-data stream of partition.
func (p *Package) OpenNewData(partition string) (io.ReadCloser, error) {
	for _, ext := range newDataExtensions {
		name := partition + NewDataSuffix + ext
		f, ok := p.files[name]
		if !ok {
			continue
		}
		rc, err := p.openEntry(f)
		if err != nil {
			return nil, err
		}
		r, err := NewDataReader(name, rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{r, rc}, nil
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// openEntry reads stored entries straight from the archive through a
// SectionReader and inflates the rest.
func (p *Package) openEntry(f *zip.File) (io.ReadCloser, error) {
	if f.Method == zip.Store {
		offset, err := f.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("failed to locate %s in %s: %w", f.Name, p.path, err)
		}
		return io.NopCloser(io.NewSectionReader(p.file, offset, int64(f.CompressedSize64))), nil
	}
	return f.Open()
}

func (p *Package) readEntry(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("package %s has no entry %s", p.path, name)
	}
	rc, err := p.openEntry(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
