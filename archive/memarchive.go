package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/bitfsorg/blockarchive-go/block"
)

// MemArchive is an in-memory implementation of Archive for testing.
type MemArchive struct {
	mu     sync.RWMutex
	blocks map[block.Hash][]byte
}

// Compile-time interface check.
var _ Archive = (*MemArchive)(nil)

// NewMemArchive creates an empty in-memory archive.
func NewMemArchive() *MemArchive {
	return &MemArchive{blocks: make(map[block.Hash][]byte)}
}

// get returns the stored bytes for hash. The slice must not be modified.
func (m *MemArchive) get(ctx context.Context, hash block.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return raw, nil
}

// BlockExists reports whether hash is stored.
func (m *MemArchive) BlockExists(ctx context.Context, hash block.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[hash]
	return ok, nil
}

// GetBlock returns a reader over the stored bytes.
func (m *MemArchive) GetBlock(ctx context.Context, hash block.Hash) (io.ReadCloser, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

// GetBlockFull parses the stored bytes.
func (m *MemArchive) GetBlockFull(ctx context.Context, hash block.Hash) (*block.Block, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	return parseFull(hash, raw)
}

// StoreBlock buffers r and replaces any existing entry in one step.
func (m *MemArchive) StoreBlock(ctx context.Context, hash block.Hash, r io.Reader) error {
	raw, err := readAllContext(ctx, r)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, hash, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[hash] = raw
	return nil
}

// StoreBlockFull serializes blk and stores it under hash.
func (m *MemArchive) StoreBlockFull(ctx context.Context, hash block.Hash, blk *block.Block) error {
	return storeBlockFull(ctx, m, hash, blk)
}

// BlockSize returns the stored length.
func (m *MemArchive) BlockSize(ctx context.Context, hash block.Hash) (int64, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

// BlockTxCount decodes the count varint after the header.
func (m *MemArchive) BlockTxCount(ctx context.Context, hash block.Hash) (uint64, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return 0, err
	}
	count, err := NewMetadataReader(bytes.NewReader(raw)).ReadTxCount()
	if err != nil {
		return 0, fmt.Errorf("block %s: %w", hash, err)
	}
	return count, nil
}

// BlockHeader decodes the first 80 bytes.
func (m *MemArchive) BlockHeader(ctx context.Context, hash block.Hash) (*block.Header, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	hdr, err := NewMetadataReader(bytes.NewReader(raw)).ParseHeader()
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	return hdr, nil
}

// GetBytesFromBlock copies out a window of the stored bytes.
func (m *MemArchive) GetBytesFromBlock(ctx context.Context, hash block.Hash, offset, length uint64) ([]byte, error) {
	raw, err := m.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := checkRange(hash, uint64(len(raw)), offset, length); err != nil {
		return nil, err
	}
	return bytes.Clone(raw[offset : offset+length]), nil
}

// ListBlocks yields a snapshot of the stored hashes in display-hex order.
func (m *MemArchive) ListBlocks(ctx context.Context) iter.Seq2[block.Hash, error] {
	return func(yield func(block.Hash, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(block.Hash{}, err)
			return
		}

		m.mu.RLock()
		hashes := make([]block.Hash, 0, len(m.blocks))
		for h := range m.blocks {
			hashes = append(hashes, h)
		}
		m.mu.RUnlock()

		slices.SortFunc(hashes, func(a, b block.Hash) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, h := range hashes {
			if !yield(h, nil) {
				return
			}
		}
	}
}
