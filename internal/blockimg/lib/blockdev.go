package lib

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/juju/ratelimit"
)

var (
	// ErrNotBlockDevice is returned by Discard on regular image files.
	ErrNotBlockDevice = errors.New("not a block device")
	// ErrDiscardUnsupported is returned when a block device rejects BLKDISCARD.
	ErrDiscardUnsupported = errors.New("discard not supported")
)

// DeviceOptions configures OpenDevice.
type DeviceOptions struct {
	// ReadOnly opens the target without write access (verify mode).
	ReadOnly bool
	// WriteRateLimit caps write throughput in bytes per second; zero is unlimited.
	WriteRateLimit int64
}

// FileDevice is a block device or image file addressed in fixed-size blocks.
type FileDevice struct {
	path      string
	file      *os.File
	blockSize uint64
	isBlock   bool
	limiter   *ratelimit.Bucket
}

// OpenDevice opens path for block I/O.
func OpenDevice(path string, blockSize uint64, opts DeviceOptions) (*FileDevice, error) {
	if blockSize == 0 {
		blockSize = rangeset.DefaultBlockSize
	}
	flag := os.O_RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}

	isBlock, err := isBlockDevice(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat device %s: %w", path, err)
	}

	d := &FileDevice{path: path, file: file, blockSize: blockSize, isBlock: isBlock}
	if opts.WriteRateLimit > 0 {
		d.limiter = ratelimit.NewBucketWithRate(float64(opts.WriteRateLimit), opts.WriteRateLimit)
	}
	return d, nil
}

// Path returns the device path.
func (d *FileDevice) Path() string { return d.path }

// BlockSize returns the block size in bytes.
func (d *FileDevice) BlockSize() uint64 { return d.blockSize }

// IsBlockDevice reports whether the target is a block special file.
func (d *FileDevice) IsBlockDevice() bool { return d.isBlock }

// ReadBlocks fills buf with the blocks of rs in order.
func (d *FileDevice) ReadBlocks(rs rangeset.RangeSet, buf []byte) error {
	if need := rs.Blocks() * d.blockSize; uint64(len(buf)) < need {
		return fmt.Errorf("read buffer too small: %d < %d", len(buf), need)
	}
	pos := uint64(0)
	for _, r := range rs.Ranges() {
		size := r.Blocks() * d.blockSize
		if _, err := d.file.ReadAt(buf[pos:pos+size], int64(r.First*d.blockSize)); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read blocks %d-%d of %s: %w", r.First, r.Second, d.path, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("failed to read blocks %d-%d of %s: %w", r.First, r.Second, d.path, err)
		}
		pos += size
	}
	return nil
}

// WriteBlocks writes the packed content of buf to the blocks of rs in order.
func (d *FileDevice) WriteBlocks(rs rangeset.RangeSet, buf []byte) error {
	if need := rs.Blocks() * d.blockSize; uint64(len(buf)) < need {
		return fmt.Errorf("write buffer too small: %d < %d", len(buf), need)
	}
	pos := uint64(0)
	for _, r := range rs.Ranges() {
		size := r.Blocks() * d.blockSize
		if d.limiter != nil {
			d.limiter.Wait(int64(size))
		}
		if _, err := d.file.WriteAt(buf[pos:pos+size], int64(r.First*d.blockSize)); err != nil {
			return fmt.Errorf("failed to write blocks %d-%d of %s: %w", r.First, r.Second, d.path, err)
		}
		pos += size
	}
	return nil
}

// Discard tells the device the blocks of rs are unused.
func (d *FileDevice) Discard(rs rangeset.RangeSet) error {
	if !d.isBlock {
		return ErrNotBlockDevice
	}
	for _, r := range rs.Ranges() {
		if err := discard(d.file, r.First*d.blockSize, r.Blocks()*d.blockSize); err != nil {
			return fmt.Errorf("failed to discard blocks %d-%d of %s: %w", r.First, r.Second, d.path, err)
		}
	}
	return nil
}

// Sync flushes written blocks to stable storage.
func (d *FileDevice) Sync() error {
	return syncData(d.file)
}

// Close releases the device.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
