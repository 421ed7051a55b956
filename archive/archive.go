package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/bitfsorg/blockarchive-go/block"
)

// DefaultMaxBlocks is the block count the shard layout is sized for.
const DefaultMaxBlocks = 2_000_000

// Archive stores serialized blocks keyed by block hash.
//
// The archive knows nothing about block structure beyond the 80-byte header
// and the transaction count varint that follows it. Stores overwrite: the
// key is a content hash, so two stores under one hash carry the same bytes.
type Archive interface {
	// BlockExists reports whether a block is stored under hash.
	BlockExists(ctx context.Context, hash block.Hash) (bool, error)

	// GetBlock opens the stored bytes for sequential reading from offset 0.
	// The caller must close the returned reader.
	GetBlock(ctx context.Context, hash block.Hash) (io.ReadCloser, error)

	// GetBlockFull loads the block into memory and parses it.
	GetBlockFull(ctx context.Context, hash block.Hash) (*block.Block, error)

	// StoreBlock stores the bytes read from r until EOF under hash. The
	// block becomes visible only once r has been fully consumed.
	StoreBlock(ctx context.Context, hash block.Hash, r io.Reader) error

	// StoreBlockFull serializes blk and stores it under hash.
	StoreBlockFull(ctx context.Context, hash block.Hash, blk *block.Block) error

	// BlockSize returns the stored size in bytes without reading the block.
	BlockSize(ctx context.Context, hash block.Hash) (int64, error)

	// BlockTxCount returns the transaction count from the varint after the header.
	BlockTxCount(ctx context.Context, hash block.Hash) (uint64, error)

	// BlockHeader returns the decoded header.
	BlockHeader(ctx context.Context, hash block.Hash) (*block.Header, error)

	// GetBytesFromBlock returns exactly length bytes starting at offset.
	GetBytesFromBlock(ctx context.Context, hash block.Hash, offset, length uint64) ([]byte, error)

	// ListBlocks yields every stored hash. Each range over the sequence
	// performs a fresh walk.
	ListBlocks(ctx context.Context) iter.Seq2[block.Hash, error]
}

// CapacityPolicy controls what happens when a walk finds more than the
// configured maximum number of blocks.
type CapacityPolicy string

const (
	// CapacityIgnore treats the maximum as documentation only.
	CapacityIgnore CapacityPolicy = "ignore"
	// CapacityWarn logs a warning when a listing passes the maximum.
	CapacityWarn CapacityPolicy = "warn"
)

type options struct {
	logger         *slog.Logger
	sync           bool
	createRoot     bool
	maxBlocks      int
	capacityPolicy CapacityPolicy
}

func defaultOptions() options {
	return options{
		logger:         slog.New(slog.DiscardHandler),
		sync:           true,
		maxBlocks:      DefaultMaxBlocks,
		capacityPolicy: CapacityIgnore,
	}
}

// Option configures an archive.
type Option func(*options)

// WithLogger sets the logger. Archives log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSync controls whether stored files are fsynced before they are
// renamed into place. Defaults to true.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

// WithCreateRoot creates a missing root directory instead of failing.
func WithCreateRoot() Option {
	return func(o *options) { o.createRoot = true }
}

// WithMaxBlocks sets the block count the archive is sized for.
func WithMaxBlocks(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlocks = n
		}
	}
}

// WithCapacityPolicy sets the behaviour when a listing passes the maximum.
func WithCapacityPolicy(p CapacityPolicy) Option {
	return func(o *options) { o.capacityPolicy = p }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// capacityCheck counts hashes yielded by a listing and warns once past max.
type capacityCheck struct {
	o      *options
	seen   int
	warned bool
}

func (c *capacityCheck) observe() {
	c.seen++
	if c.o.capacityPolicy != CapacityWarn || c.warned || c.seen <= c.o.maxBlocks {
		return
	}
	c.warned = true
	c.o.logger.Warn("archive holds more blocks than it is sized for",
		"max_blocks", c.o.maxBlocks)
}

// CollectBlocks drains a listing into a slice. It holds every hash in
// memory; prefer ranging over ListBlocks for large archives.
func CollectBlocks(ctx context.Context, a Archive) ([]block.Hash, error) {
	var hashes []block.Hash
	for h, err := range a.ListBlocks(ctx) {
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// Pull converts a listing into a pull-style iterator. The caller must call
// stop when done.
func Pull(seq iter.Seq2[block.Hash, error]) (next func() (block.Hash, error, bool), stop func()) {
	return iter.Pull2(seq)
}

// storeBlockFull is shared by the StoreBlockFull implementations.
func storeBlockFull(ctx context.Context, a Archive, hash block.Hash, blk *block.Block) error {
	if err := blk.Validate(); err != nil {
		return err
	}
	return a.StoreBlock(ctx, hash, bytes.NewReader(blk.Bytes()))
}

// parseFull maps parse failures onto ErrCorrupt.
func parseFull(hash block.Hash, raw []byte) (*block.Block, error) {
	blk, err := block.ParseBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, hash, err)
	}
	return blk, nil
}

// checkRange validates a byte window against a blob size.
func checkRange(hash block.Hash, size, offset, length uint64) error {
	end := offset + length
	if end < offset || end > size {
		return fmt.Errorf("%w: %s: [%d, %d+%d) exceeds size %d", ErrOutOfRange, hash, offset, offset, length, size)
	}
	return nil
}
