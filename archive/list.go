package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bitfsorg/blockarchive-go/block"
)

// listBatchSize bounds how many directory entries a listing reads at once.
const listBatchSize = 256

// ListBlocks walks {root}/{Dir1}/{Dir2}/ and yields each block hash found.
//
// Directories are read in batches, so neither the key set nor a full
// directory listing is held in memory. Entries that are not shard
// directories or block files are skipped, as are block files that sit
// outside the directory Resolve assigns them (GetBlock could never find
// them). An unreadable root ends the sequence with an ErrIO; an unreadable
// shard directory is yielded as an ErrIO and the walk moves on.
func (a *FileArchive) ListBlocks(ctx context.Context) iter.Seq2[block.Hash, error] {
	return func(yield func(block.Hash, error) bool) {
		w := &walker{
			ctx:      ctx,
			root:     a.root,
			log:      a.opts.logger,
			yield:    yield,
			capacity: capacityCheck{o: &a.opts},
		}
		w.run()
	}
}

// walker is the state of one listing.
type walker struct {
	ctx      context.Context
	root     string
	log      *slog.Logger
	yield    func(block.Hash, error) bool
	capacity capacityCheck
	done     bool
}

func (w *walker) run() {
	w.each(w.root, func(l1 fs.DirEntry) bool {
		if !l1.IsDir() || !isShardDirName(l1.Name()) {
			return true
		}
		p1 := filepath.Join(w.root, l1.Name())
		return w.each(p1, func(l2 fs.DirEntry) bool {
			if !l2.IsDir() || !isShardDirName(l2.Name()) {
				return true
			}
			p2 := filepath.Join(p1, l2.Name())
			return w.each(p2, func(f fs.DirEntry) bool {
				return w.file(l1.Name(), l2.Name(), f)
			})
		})
	})
}

// each calls fn for every entry of the directory at path. It returns
// false once the walk must stop.
func (w *walker) each(path string, fn func(fs.DirEntry) bool) bool {
	if !w.alive() {
		return false
	}
	d, err := os.Open(path)
	if err != nil {
		return w.fail(path, err)
	}
	defer func() { _ = d.Close() }()

	for {
		entries, err := d.ReadDir(listBatchSize)
		for _, e := range entries {
			if !fn(e) {
				return false
			}
		}
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			return w.fail(path, err)
		}
		if !w.alive() {
			return false
		}
	}
}

func (w *walker) file(dir1, dir2 string, e fs.DirEntry) bool {
	if !e.Type().IsRegular() {
		return true
	}
	h, ok := ParseFilename(e.Name())
	if !ok {
		return true
	}
	if sp := Resolve(h); sp.Dir1 != dir1 || sp.Dir2 != dir2 {
		return true
	}
	w.capacity.observe()
	return w.emit(h, nil)
}

// alive reports whether the walk may continue. A cancelled context is
// yielded once and ends the walk.
func (w *walker) alive() bool {
	if w.done {
		return false
	}
	if err := w.ctx.Err(); err != nil {
		w.done = true
		w.yield(block.Hash{}, err)
		return false
	}
	return true
}

// fail reports an unreadable directory. Only the root is fatal.
func (w *walker) fail(path string, err error) bool {
	if path != w.root {
		w.log.Warn("skipping unreadable shard directory", "path", path, "error", err)
	}
	if !w.emit(block.Hash{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)) {
		return false
	}
	if path == w.root {
		w.done = true
		return false
	}
	return true
}

func (w *walker) emit(h block.Hash, err error) bool {
	if w.done {
		return false
	}
	if !w.yield(h, err) {
		w.done = true
		return false
	}
	return true
}
