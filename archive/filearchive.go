package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/bitfsorg/blockarchive-go/block"
	"github.com/bitfsorg/blockarchive-go/config"
	"github.com/bitfsorg/blockarchive-go/logging"
)

// tempFileExt marks an in-progress store. Temp names start with a dot and
// end in .tmp, so they never parse as a block file.
const tempFileExt = ".tmp"

// FileArchive implements Archive on the local filesystem.
// Blocks are stored at: {root}/{Dir1}/{Dir2}/{hash}.bin (see Resolve).
//
// Example: {root}/31/c5/00000000000000000124a294b9e1e65224f0636ffd4dadac777bed5e709dc531.bin
//
// FileArchive holds no locks and caches nothing. Stores write to a temp
// file in the leaf directory and rename it into place, so readers see
// either no file or the complete file.
type FileArchive struct {
	root string
	opts options

	// logCloser releases a log file opened by FromConfig.
	logCloser io.Closer
}

// Compile-time interface check.
var _ Archive = (*FileArchive)(nil)

// NewFileArchive opens an archive rooted at root. The root must be an
// existing directory unless WithCreateRoot is given.
func NewFileArchive(root string, opts ...Option) (*FileArchive, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	o := applyOptions(opts)

	if o.createRoot {
		if err := os.MkdirAll(root, 0700); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidRoot, root)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	return &FileArchive{root: root, opts: o}, nil
}

// FromConfig opens the file archive described by cfg, creating the root
// directory if needed. It logs at cfg.LogLevel to cfg.LogFile (stderr when
// empty), tagged with cfg.Network; a WithLogger option replaces that
// logger. Call Close to release the log file.
func FromConfig(cfg config.Config, opts ...Option) (*FileArchive, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	logger, closer, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	base := []Option{
		WithLogger(logger.With("network", cfg.Network)),
		WithCreateRoot(),
		WithSync(cfg.Sync),
		WithMaxBlocks(cfg.MaxBlocks),
		WithCapacityPolicy(CapacityPolicy(cfg.CapacityPolicy)),
	}
	a, err := NewFileArchive(cfg.RootDir, append(base, opts...)...)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.logCloser = closer
	a.opts.logger.Debug("opened archive", "root", a.root)
	return a, nil
}

// Close releases resources held by the archive. Stored blocks stay
// readable by other FileArchive values on the same root.
func (a *FileArchive) Close() error {
	if a.logCloser == nil {
		return nil
	}
	c := a.logCloser
	a.logCloser = nil
	return c.Close()
}

// Root returns the archive root directory.
func (a *FileArchive) Root() string { return a.root }

// filePath returns the full file path for a block hash.
func (a *FileArchive) filePath(hash block.Hash) string {
	return Resolve(hash).Path(a.root)
}

// statusError maps a filesystem error onto the archive taxonomy.
func statusError(hash block.Hash, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// open opens the block file for reading.
func (a *FileArchive) open(ctx context.Context, hash block.Hash) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.filePath(hash))
	if err != nil {
		return nil, statusError(hash, err)
	}
	return f, nil
}

// BlockExists reports whether a block file exists for hash.
func (a *FileArchive) BlockExists(ctx context.Context, hash block.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(a.filePath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return true, nil
}

// GetBlock opens the block file. The returned reader is an *os.File.
func (a *FileArchive) GetBlock(ctx context.Context, hash block.Hash) (io.ReadCloser, error) {
	return a.open(ctx, hash)
}

// GetBlockFull reads the whole block file and parses it.
func (a *FileArchive) GetBlockFull(ctx context.Context, hash block.Hash) (*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(a.filePath(hash))
	if err != nil {
		return nil, statusError(hash, err)
	}
	return parseFull(hash, raw)
}

// tempName returns a unique temp file name for a store of p.
func tempName(p ShardPath) string {
	stem := strings.TrimSuffix(p.Filename, BlockFileExt)
	return "." + stem + "." + ulid.Make().String() + tempFileExt
}

// StoreBlock writes r to a temp file next to the final path, then renames
// it into place. On any failure the temp file is removed and nothing
// becomes visible.
func (a *FileArchive) StoreBlock(ctx context.Context, hash block.Hash, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	sp := Resolve(hash)
	dir := sp.Dir(a.root)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: create shard directory: %w", ErrIO, err)
	}

	tmpPath := filepath.Join(dir, tempName(sp))
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrIO, err)
	}

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", ErrIO, hash, err)
	}

	if a.opts.sync {
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("%w: sync %s: %w", ErrIO, hash, err)
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %w", ErrIO, hash, err)
	}

	if err := os.Rename(tmpPath, sp.Path(a.root)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %w", ErrIO, hash, err)
	}

	a.opts.logger.Debug("stored block", "hash", hash.String(), "bytes", n)
	return nil
}

// StoreBlockFull serializes blk and stores it under hash.
func (a *FileArchive) StoreBlockFull(ctx context.Context, hash block.Hash, blk *block.Block) error {
	return storeBlockFull(ctx, a, hash, blk)
}

// BlockSize returns the file size from filesystem metadata.
func (a *FileArchive) BlockSize(ctx context.Context, hash block.Hash) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(a.filePath(hash))
	if err != nil {
		return 0, statusError(hash, err)
	}
	return info.Size(), nil
}

// BlockTxCount reads at most the header and the count varint.
func (a *FileArchive) BlockTxCount(ctx context.Context, hash block.Hash) (uint64, error) {
	f, err := a.open(ctx, hash)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	count, err := NewMetadataReader(f).ReadTxCount()
	if err != nil {
		return 0, fmt.Errorf("block %s: %w", hash, err)
	}
	return count, nil
}

// BlockHeader reads and decodes the first 80 bytes.
func (a *FileArchive) BlockHeader(ctx context.Context, hash block.Hash) (*block.Header, error) {
	f, err := a.open(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	hdr, err := NewMetadataReader(f).ParseHeader()
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	return hdr, nil
}

// GetBytesFromBlock reads length bytes at offset. The window is checked
// against the file size before any content is read.
func (a *FileArchive) GetBytesFromBlock(ctx context.Context, hash block.Hash, offset, length uint64) ([]byte, error) {
	f, err := a.open(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := checkRange(hash, uint64(info.Size()), offset, length); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if uint64(n) == length {
		return buf, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: short read at %d", ErrOutOfRange, hash, offset)
	}
	return nil, fmt.Errorf("%w: %w", ErrIO, err)
}
