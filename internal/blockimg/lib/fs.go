package lib

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path through path+suffix: the temporary file
// is fsynced, renamed over path, and the parent directory is fsynced so the
// rename survives a power loss.
func WriteFileAtomic(path, suffix string, data []byte, perm os.FileMode) error {
	tmp := path + suffix
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return FsyncDir(filepath.Dir(path))
}

// FsyncDir flushes a directory's entries to stable storage.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
