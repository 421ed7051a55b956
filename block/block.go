package block

import (
	"bytes"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/transaction"
)

// MinTxSize is a lower bound on the serialized size of any transaction.
// It caps the declared transaction count against the bytes that remain.
const MinTxSize = 10

// Block is a header followed by the transactions it commits to.
type Block struct {
	Header       *Header
	Transactions []*transaction.Transaction
}

// Hash returns the block hash, which is the hash of its header.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() uint64 {
	return uint64(len(b.Transactions))
}

// Bytes serializes the block: header || varint(txCount) || tx...
func (b *Block) Bytes() []byte {
	buf := make([]byte, 0, HeaderSize+MaxVarIntSize)
	buf = append(buf, b.Header.Bytes()...)
	buf = AppendVarInt(buf, b.TxCount())
	for _, tx := range b.Transactions {
		buf = append(buf, tx.Bytes()...)
	}
	return buf
}

// Validate checks that the block can be serialized.
func (b *Block) Validate() error {
	if b == nil || b.Header == nil {
		return ErrNilBlock
	}
	for i, tx := range b.Transactions {
		if tx == nil {
			return fmt.Errorf("%w: transaction %d is nil", ErrNilBlock, i)
		}
	}
	return nil
}

// ParseBlock decodes a serialized block. The whole buffer must be consumed.
func ParseBlock(raw []byte) (*Block, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrInvalidBlock, len(raw))
	}
	hdr, err := ParseHeader(raw[:HeaderSize])
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(raw[HeaderSize:])
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("%w: tx count: %w", ErrInvalidBlock, err)
	}
	if count > uint64(r.Len())/MinTxSize {
		return nil, fmt.Errorf("%w: tx count %d exceeds remaining %d bytes", ErrInvalidBlock, count, r.Len())
	}

	blk := &Block{
		Header:       hdr,
		Transactions: make([]*transaction.Transaction, 0, count),
	}
	for i := uint64(0); i < count; i++ {
		tx := &transaction.Transaction{}
		if _, err := tx.ReadFrom(r); err != nil {
			return nil, fmt.Errorf("%w: tx %d: %w", ErrInvalidBlock, i, err)
		}
		blk.Transactions = append(blk.Transactions, tx)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidBlock, r.Len())
	}
	return blk, nil
}
