package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no block is stored under the given hash.
	ErrNotFound = errors.New("archive: block not found")

	// ErrIO indicates an underlying storage failure (permissions, disk full, device errors).
	ErrIO = errors.New("archive: I/O failure")

	// ErrCorrupt indicates stored bytes do not parse as a block.
	ErrCorrupt = errors.New("archive: corrupt block data")

	// ErrTruncated indicates fewer bytes are stored than the header or a varint requires.
	ErrTruncated = fmt.Errorf("%w: truncated data", ErrCorrupt)

	// ErrOutOfRange indicates a byte window extends past the end of the block.
	ErrOutOfRange = errors.New("archive: byte range out of bounds")

	// ErrInvalidRoot indicates the archive root is empty or not a directory.
	ErrInvalidRoot = errors.New("archive: invalid root directory")

	// ErrClosed indicates the archive has been closed.
	ErrClosed = errors.New("archive: archive is closed")
)
