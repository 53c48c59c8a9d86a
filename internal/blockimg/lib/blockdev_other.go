//go:build !linux

package lib

import "os"

func isBlockDevice(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, err
	}
	mode := info.Mode()
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0, nil
}

func discard(file *os.File, offset, size uint64) error {
	return ErrDiscardUnsupported
}

func syncData(file *os.File) error {
	return file.Sync()
}
