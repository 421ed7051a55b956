package block

import (
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// HashSize is the size of a block hash in bytes.
const HashSize = chainhash.HashSize

// Hash identifies a block. It holds the raw double-SHA256 digest; String
// renders the byte-reversed hex form used by explorers and node RPCs.
type Hash = chainhash.Hash

// NewHashFromHex parses the display (byte-reversed) hex form of a hash.
func NewHashFromHex(s string) (Hash, error) {
	if len(s) != HashSize*2 {
		return Hash{}, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalidHash, HashSize*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	var h Hash
	for i := 0; i < HashSize; i++ {
		h[i] = raw[HashSize-1-i]
	}
	return h, nil
}
