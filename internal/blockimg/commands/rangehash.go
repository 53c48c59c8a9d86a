package commands

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
)

// rangeHashChunk is the number of blocks read per device call.
const rangeHashChunk = 256

// RangeHash returns the SHA-1 of the blocks of ranges on device, in range
// order.
func RangeHash(device, ranges string, blockSize uint64) (string, error) {
	rs, err := rangeset.Parse(ranges)
	if err != nil {
		return "", fmt.Errorf("failed to parse ranges %q: %w", ranges, err)
	}
	dev, err := lib.OpenDevice(device, blockSize, lib.DeviceOptions{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer dev.Close()

	h := sha1.New()
	buf := make([]byte, rangeHashChunk*dev.BlockSize())
	for _, r := range rs.Ranges() {
		for first := r.First; first < r.Second; first += rangeHashChunk {
			piece, err := rangeset.New(rangeset.Range{First: first, Second: min(first+rangeHashChunk, r.Second)})
			if err != nil {
				return "", err
			}
			data := buf[:piece.Blocks()*dev.BlockSize()]
			if err := dev.ReadBlocks(piece, data); err != nil {
				return "", fmt.Errorf("failed to read %s: %w", piece, err)
			}
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
