package block

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// MerkleRoot computes the merkle root over txids in block order. Odd levels
// duplicate their last element. An empty list yields the zero hash.
func MerkleRoot(txids []Hash) Hash {
	if len(txids) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(txids))
	copy(level, txids)

	var pair [2 * HashSize]byte
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			copy(pair[:HashSize], level[i][:])
			copy(pair[HashSize:], level[i+1][:])
			next = append(next, chainhash.DoubleHashH(pair[:]))
		}
		level = next
	}
	return level[0]
}

// ComputeMerkleRoot returns the merkle root of the block's transactions.
func (b *Block) ComputeMerkleRoot() Hash {
	txids := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		txids[i] = *tx.TxID()
	}
	return MerkleRoot(txids)
}

// CheckMerkleRoot reports whether the header commits to the transactions.
func (b *Block) CheckMerkleRoot() error {
	if err := b.Validate(); err != nil {
		return err
	}
	if got := b.ComputeMerkleRoot(); got != b.Header.MerkleRoot {
		return fmt.Errorf("%w: header has %s, transactions give %s", ErrMerkleMismatch, b.Header.MerkleRoot, got)
	}
	return nil
}

// CompactToBig expands the compact target in a header's Bits field: the
// high byte is a base-256 length and the low 23 bits are the leading digits.
// Bit 23 is a sign flag; a negative target is returned as zero.
func CompactToBig(bits uint32) *big.Int {
	if bits&0x00800000 != 0 {
		return new(big.Int)
	}
	size := int(bits >> 24)
	digits := uint64(bits & 0x007fffff)
	if size <= 3 {
		return new(big.Int).SetUint64(digits >> (8 * (3 - size)))
	}
	target := new(big.Int).SetUint64(digits)
	return target.Lsh(target, uint(8*(size-3)))
}

// HashToBig interprets a hash as the little-endian 256-bit number that
// proof of work compares against the target.
func HashToBig(h Hash) *big.Int {
	be := h.CloneBytes()
	slices.Reverse(be)
	return new(big.Int).SetBytes(be)
}

// CheckProofOfWork verifies that the header hash does not exceed the
// target encoded in Bits.
func (h *Header) CheckProofOfWork() error {
	target := CompactToBig(h.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: bits %08x encode no target", ErrInsufficientPoW, h.Bits)
	}
	hash := h.Hash()
	if HashToBig(hash).Cmp(target) > 0 {
		return fmt.Errorf("%w: %s above target for bits %08x", ErrInsufficientPoW, hash, h.Bits)
	}
	return nil
}
