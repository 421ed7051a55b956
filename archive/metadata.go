package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/bitfsorg/blockarchive-go/block"
)

// MaxMetadataSize is the most MetadataReader ever reads: the header plus
// the longest varint.
const MaxMetadataSize = block.HeaderSize + block.MaxVarIntSize

// MetadataReader extracts the header and transaction count from the start
// of a stored block without touching the transaction payload.
type MetadataReader struct {
	r      io.Reader
	header []byte
}

// NewMetadataReader wraps r, which must be positioned at offset 0 of a block.
func NewMetadataReader(r io.Reader) *MetadataReader {
	return &MetadataReader{r: io.LimitReader(r, MaxMetadataSize)}
}

// ReadHeader returns the raw 80-byte header.
func (m *MetadataReader) ReadHeader() ([]byte, error) {
	if m.header != nil {
		return m.header, nil
	}
	buf := make([]byte, block.HeaderSize)
	n, err := io.ReadFull(m.r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: header has %d of %d bytes", ErrTruncated, n, block.HeaderSize)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	m.header = buf
	return buf, nil
}

// ReadTxCount returns the varint transaction count that follows the header.
func (m *MetadataReader) ReadTxCount() (uint64, error) {
	if _, err := m.ReadHeader(); err != nil {
		return 0, err
	}
	count, err := block.ReadVarInt(m.r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: tx count", ErrTruncated)
		}
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return count, nil
}

// ParseHeader reads and decodes the header.
func (m *MetadataReader) ParseHeader() (*block.Header, error) {
	raw, err := m.ReadHeader()
	if err != nil {
		return nil, err
	}
	hdr, err := block.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return hdr, nil
}
