//go:build linux

package lib

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func isBlockDevice(file *os.File) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return false, err
	}
	return st.Mode&unix.S_IFMT == unix.S_IFBLK, nil
}

func discard(file *os.File, offset, size uint64) error {
	args := [2]uint64{offset, size}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&args)))
	if errno == unix.EOPNOTSUPP {
		return ErrDiscardUnsupported
	}
	if errno != 0 {
		return errno
	}
	return nil
}

func syncData(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}
