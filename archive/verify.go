package archive

import (
	"context"
	"fmt"

	"github.com/bitfsorg/blockarchive-go/block"
)

type verifyOptions struct {
	proofOfWork bool
}

// VerifyOption configures VerifyBlock.
type VerifyOption func(*verifyOptions)

// WithProofOfWork also requires the header hash to meet the target in its
// Bits field. Leave it off for regtest or synthetic blocks.
func WithProofOfWork() VerifyOption {
	return func(o *verifyOptions) { o.proofOfWork = true }
}

// VerifyBlock loads the block stored under hash and checks that it is
// stored under its own header hash and that the header merkle root matches
// its transactions. Failures wrap ErrCorrupt.
func VerifyBlock(ctx context.Context, a Archive, hash block.Hash, opts ...VerifyOption) error {
	var o verifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	blk, err := a.GetBlockFull(ctx, hash)
	if err != nil {
		return err
	}
	if got := blk.Hash(); got != hash {
		return fmt.Errorf("%w: stored under %s but header hashes to %s", ErrCorrupt, hash, got)
	}
	if o.proofOfWork {
		if err := blk.Header.CheckProofOfWork(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	if err := blk.CheckMerkleRoot(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, hash, err)
	}
	return nil
}
