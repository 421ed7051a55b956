package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/blockarchive-go/block"
)

var bucketBlocks = []byte("blocks")

// BoltArchive implements Archive in a single bbolt database file. Keys are
// the raw 32 hash bytes, values are the serialized blocks.
//
// Each store is one bbolt transaction, so a block is either fully present
// or absent. Values are copied out of the transaction before they are
// returned.
type BoltArchive struct {
	db     *bbolt.DB
	opts   options
	closed atomic.Bool
}

// Compile-time interface check.
var _ Archive = (*BoltArchive)(nil)

// OpenBoltArchive opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltArchive(dbPath string, opts ...Option) (*BoltArchive, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	o := applyOptions(opts)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIO, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrIO, err)
	}
	db.NoSync = !o.sync

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create bucket %q: %w", ErrIO, bucketBlocks, err)
	}

	return &BoltArchive{db: db, opts: o}, nil
}

// Close closes the underlying database.
func (s *BoltArchive) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// view runs fn against the stored value for hash inside a read
// transaction. The value is only valid for the duration of fn.
func (s *BoltArchive) view(ctx context.Context, hash block.Hash, fn func(v []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return fn(v)
	})
	return wrapBolt(err)
}

// wrapBolt leaves archive errors alone and files everything else under ErrIO.
func wrapBolt(err error) error {
	if err == nil || isArchiveError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

func isArchiveError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrIO, ErrCorrupt, ErrOutOfRange, ErrClosed} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// BlockExists reports whether a value is stored for hash.
func (s *BoltArchive) BlockExists(ctx context.Context, hash block.Hash) (bool, error) {
	err := s.view(ctx, hash, func([]byte) error { return nil })
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetBlock returns a reader over a copy of the stored value.
func (s *BoltArchive) GetBlock(ctx context.Context, hash block.Hash) (io.ReadCloser, error) {
	var raw []byte
	err := s.view(ctx, hash, func(v []byte) error {
		raw = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

// GetBlockFull parses the stored value.
func (s *BoltArchive) GetBlockFull(ctx context.Context, hash block.Hash) (*block.Block, error) {
	var blk *block.Block
	err := s.view(ctx, hash, func(v []byte) error {
		var err error
		blk, err = parseFull(hash, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// StoreBlock buffers r and writes it in a single transaction.
func (s *BoltArchive) StoreBlock(ctx context.Context, hash block.Hash, r io.Reader) error {
	if s.closed.Load() {
		return ErrClosed
	}
	raw, err := readAllContext(ctx, r)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, hash, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(hash[:], raw)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrIO, hash, err)
	}

	s.opts.logger.Debug("stored block", "hash", hash.String(), "bytes", len(raw))
	return nil
}

// StoreBlockFull serializes blk and stores it under hash.
func (s *BoltArchive) StoreBlockFull(ctx context.Context, hash block.Hash, blk *block.Block) error {
	return storeBlockFull(ctx, s, hash, blk)
}

// BlockSize returns the stored value length.
func (s *BoltArchive) BlockSize(ctx context.Context, hash block.Hash) (int64, error) {
	var size int64
	err := s.view(ctx, hash, func(v []byte) error {
		size = int64(len(v))
		return nil
	})
	return size, err
}

// BlockTxCount decodes the count varint after the header.
func (s *BoltArchive) BlockTxCount(ctx context.Context, hash block.Hash) (uint64, error) {
	var count uint64
	err := s.view(ctx, hash, func(v []byte) error {
		var err error
		count, err = NewMetadataReader(bytes.NewReader(v)).ReadTxCount()
		if err != nil {
			return fmt.Errorf("block %s: %w", hash, err)
		}
		return nil
	})
	return count, err
}

// BlockHeader decodes the first 80 bytes.
func (s *BoltArchive) BlockHeader(ctx context.Context, hash block.Hash) (*block.Header, error) {
	var hdr *block.Header
	err := s.view(ctx, hash, func(v []byte) error {
		var err error
		hdr, err = NewMetadataReader(bytes.NewReader(v)).ParseHeader()
		if err != nil {
			return fmt.Errorf("block %s: %w", hash, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hdr, nil
}

// GetBytesFromBlock copies out a window of the stored value.
func (s *BoltArchive) GetBytesFromBlock(ctx context.Context, hash block.Hash, offset, length uint64) ([]byte, error) {
	var out []byte
	err := s.view(ctx, hash, func(v []byte) error {
		if err := checkRange(hash, uint64(len(v)), offset, length); err != nil {
			return err
		}
		out = bytes.Clone(v[offset : offset+length])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListBlocks walks the bucket in key order, listBatchSize keys per read
// transaction, resuming after the last key of the previous batch. Blocks
// stored while the listing runs may or may not be seen.
func (s *BoltArchive) ListBlocks(ctx context.Context) iter.Seq2[block.Hash, error] {
	return func(yield func(block.Hash, error) bool) {
		capacity := capacityCheck{o: &s.opts}
		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(block.Hash{}, err)
				return
			}
			if s.closed.Load() {
				yield(block.Hash{}, ErrClosed)
				return
			}

			batch, more, err := s.nextBatch(after)
			if err != nil {
				yield(block.Hash{}, fmt.Errorf("%w: list: %w", ErrIO, err))
				return
			}
			for _, h := range batch {
				capacity.observe()
				if !yield(h, nil) {
					return
				}
			}
			if !more || len(batch) == 0 {
				return
			}
			last := batch[len(batch)-1]
			after = last[:]
		}
	}
}

// nextBatch reads up to listBatchSize hash keys that sort after 'after'
// (from the first key when after is nil). Keys that are not 32 bytes are
// skipped.
func (s *BoltArchive) nextBatch(after []byte) ([]block.Hash, bool, error) {
	batch := make([]block.Hash, 0, listBatchSize)
	more := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketBlocks).Cursor()
		var k []byte
		if after == nil {
			k, _ = c.First()
		} else {
			k, _ = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, _ = c.Next()
			}
		}
		for ; k != nil; k, _ = c.Next() {
			if len(batch) == listBatchSize {
				more = true
				return nil
			}
			if len(k) != block.HashSize {
				continue
			}
			var h block.Hash
			copy(h[:], k)
			batch = append(batch, h)
		}
		return nil
	})
	return batch, more, err
}
