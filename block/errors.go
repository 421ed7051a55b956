package block

import "errors"

var (
	// ErrInvalidHash indicates a hash string is not 64 hex characters.
	ErrInvalidHash = errors.New("block: invalid hash")

	// ErrInvalidHeader indicates the header is not exactly 80 bytes.
	ErrInvalidHeader = errors.New("block: invalid header")

	// ErrInvalidBlock indicates the raw bytes do not form a complete block.
	ErrInvalidBlock = errors.New("block: invalid block")

	// ErrNilBlock indicates a required block or header is nil.
	ErrNilBlock = errors.New("block: block is nil")

	// ErrMerkleMismatch indicates the header merkle root does not match the transactions.
	ErrMerkleMismatch = errors.New("block: merkle root mismatch")

	// ErrInsufficientPoW indicates the header hash exceeds the target in Bits.
	ErrInsufficientPoW = errors.New("block: insufficient proof of work")
)
