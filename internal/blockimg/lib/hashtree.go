package lib

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownHashAlgorithm is returned for hash algorithms other than sha1 and sha256.
var ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

// HashFunction returns the constructor for a verity hash algorithm name.
func HashFunction(name string) (func() hash.Hash, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHashAlgorithm, name)
	}
}

// HashTree is a dm-verity hash tree. Tree holds the levels top level first,
// the layout written to the device.
type HashTree struct {
	Tree     []byte
	RootHash []byte
}

// RootHashHex returns the root digest as lowercase hex.
func (h HashTree) RootHashHex() string { return hex.EncodeToString(h.RootHash) }

// HashTreeSize returns the number of bytes of the tree over dataSize bytes.
func HashTreeSize(dataSize, blockSize uint64, digestSize int) uint64 {
	var total uint64
	for _, level := range levelSizes(dataSize, blockSize, uint64(digestSize)) {
		total += level
	}
	return total
}

// levelSizes returns the padded size of every level, bottom level first.
func levelSizes(dataSize, blockSize, digestSize uint64) []uint64 {
	var sizes []uint64
	blocks := (dataSize + blockSize - 1) / blockSize
	for blocks > 1 || len(sizes) == 0 {
		size := roundUp(blocks*digestSize, blockSize)
		sizes = append(sizes, size)
		blocks = size / blockSize
	}
	return sizes
}

func roundUp(n, to uint64) uint64 {
	return (n + to - 1) / to * to
}

// HashTreeBuilder computes a verity tree over data fed block by block. Every
// digest covers salt || block, and each level is zero padded to a whole block.
type HashTreeBuilder struct {
	blockSize  uint64
	digestSize uint64
	newHash    func() hash.Hash
	salt       []byte
	dataSize   uint64

	level0 []byte
	hashed uint64
}

// NewHashTreeBuilder prepares a tree over dataSize bytes.
func NewHashTreeBuilder(blockSize uint64, algorithm string, salt []byte, dataSize uint64) (*HashTreeBuilder, error) {
	newHash, err := HashFunction(algorithm)
	if err != nil {
		return nil, err
	}
	if dataSize == 0 || dataSize%blockSize != 0 {
		return nil, fmt.Errorf("hash tree data size %d is not a positive multiple of %d", dataSize, blockSize)
	}
	if len(salt) == 0 {
		return nil, errors.New("hash tree salt is empty")
	}
	digestSize := uint64(newHash().Size())
	return &HashTreeBuilder{
		blockSize:  blockSize,
		digestSize: digestSize,
		newHash:    newHash,
		salt:       salt,
		dataSize:   dataSize,
		level0:     make([]byte, roundUp(dataSize/blockSize*digestSize, blockSize)),
	}, nil
}

// TreeSize returns the size Build will produce.
func (b *HashTreeBuilder) TreeSize() uint64 {
	return HashTreeSize(b.dataSize, b.blockSize, int(b.digestSize))
}

// Update hashes the next whole blocks of data.
func (b *HashTreeBuilder) Update(data []byte) error {
	size := uint64(len(data))
	if size%b.blockSize != 0 {
		return fmt.Errorf("hash tree update of %d bytes is not block aligned", size)
	}
	if b.hashed+size > b.dataSize {
		return fmt.Errorf("hash tree input exceeds %d bytes", b.dataSize)
	}
	first := b.hashed / b.blockSize
	blocks := size / b.blockSize
	dst := b.level0[first*b.digestSize : (first+blocks)*b.digestSize]
	if err := hashBlocks(dst, data, b.blockSize, b.digestSize, b.salt, b.newHash); err != nil {
		return err
	}
	b.hashed += size
	return nil
}

// Build finishes the tree once all data has been hashed.
func (b *HashTreeBuilder) Build() (HashTree, error) {
	if b.hashed != b.dataSize {
		return HashTree{}, fmt.Errorf("hash tree got %d of %d bytes", b.hashed, b.dataSize)
	}

	levels := [][]byte{b.level0}
	for uint64(len(levels[len(levels)-1])) > b.blockSize {
		input := levels[len(levels)-1]
		level := make([]byte, roundUp(uint64(len(input))/b.blockSize*b.digestSize, b.blockSize))
		if err := hashBlocks(level, input, b.blockSize, b.digestSize, b.salt, b.newHash); err != nil {
			return HashTree{}, err
		}
		levels = append(levels, level)
	}

	h := b.newHash()
	h.Write(b.salt)
	h.Write(levels[len(levels)-1])

	var tree []byte
	for i := len(levels) - 1; i >= 0; i-- {
		tree = append(tree, levels[i]...)
	}
	return HashTree{Tree: tree, RootHash: h.Sum(nil)}, nil
}

// BuildHashTree computes the verity tree over data held in memory.
func BuildHashTree(data []byte, blockSize uint64, algorithm string, salt []byte) (HashTree, error) {
	b, err := NewHashTreeBuilder(blockSize, algorithm, salt, uint64(len(data)))
	if err != nil {
		return HashTree{}, err
	}
	if err := b.Update(data); err != nil {
		return HashTree{}, err
	}
	return b.Build()
}

// hashBlocks writes the digest of every block of input to dst, splitting the
// work across GOMAXPROCS goroutines.
func hashBlocks(dst, input []byte, blockSize, digestSize uint64, salt []byte, newHash func() hash.Hash) error {
	blocks := uint64(len(input)) / blockSize
	if blocks == 0 {
		return nil
	}

	workers := uint64(runtime.GOMAXPROCS(0))
	if workers > blocks {
		workers = blocks
	}
	per := (blocks + workers - 1) / workers

	var g errgroup.Group
	for w := uint64(0); w < workers; w++ {
		first, last := w*per, min((w+1)*per, blocks)
		g.Go(func() error {
			h := newHash()
			for i := first; i < last; i++ {
				h.Reset()
				h.Write(salt)
				h.Write(input[i*blockSize : (i+1)*blockSize])
				h.Sum(dst[i*digestSize : i*digestSize : (i+1)*digestSize])
			}
			return nil
		})
	}
	return g.Wait()
}
