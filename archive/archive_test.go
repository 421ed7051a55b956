package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/blockarchive-go/block"
)

// --- Helper functions ---

func testTx(seed string, sats uint64) *transaction.Transaction {
	tx := transaction.NewTransaction()
	src := chainhash.DoubleHashH([]byte(seed))
	unlock := &script.Script{}
	_ = unlock.AppendPushData([]byte(seed))
	tx.AddInput(&transaction.TransactionInput{
		SourceTXID:       &src,
		SourceTxOutIndex: 0,
		UnlockingScript:  unlock,
		SequenceNumber:   0xffffffff,
	})
	tx.AddOutput(&transaction.TransactionOutput{
		Satoshis:      sats,
		LockingScript: script.NewFromBytes([]byte{script.OpTRUE}),
	})
	return tx
}

// testBlock builds a block whose hash is determined by seed.
func testBlock(seed uint32, nTx int) *block.Block {
	blk := &block.Block{
		Header: &block.Header{
			Version:    2,
			PrevBlock:  chainhash.DoubleHashH([]byte(fmt.Sprintf("prev-%d", seed))),
			MerkleRoot: chainhash.DoubleHashH([]byte(fmt.Sprintf("merkle-%d", seed))),
			Timestamp:  1700000000 + seed,
			Bits:       0x1d00ffff,
			Nonce:      seed,
		},
	}
	for i := 0; i < nTx; i++ {
		blk.Transactions = append(blk.Transactions, testTx(fmt.Sprintf("%d-%d", seed, i), uint64(1000+i)))
	}
	return blk
}

func storeTestBlock(t *testing.T, a Archive, seed uint32, nTx int) (block.Hash, []byte) {
	t.Helper()
	blk := testBlock(seed, nTx)
	h := blk.Hash()
	require.NoError(t, a.StoreBlockFull(context.Background(), h, blk))
	return h, blk.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func unknownHash() block.Hash {
	return chainhash.DoubleHashH([]byte("never stored"))
}

// --- Conformance suite shared by every backend ---

func runArchiveSuite(t *testing.T, newArchive func(t *testing.T) Archive) {
	ctx := context.Background()

	t.Run("NotStored", func(t *testing.T) {
		a := newArchive(t)
		h := unknownHash()

		exists, err := a.BlockExists(ctx, h)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = a.GetBlock(ctx, h)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = a.GetBlockFull(ctx, h)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = a.BlockSize(ctx, h)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = a.BlockTxCount(ctx, h)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = a.BlockHeader(ctx, h)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = a.GetBytesFromBlock(ctx, h, 0, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("StoreAndGet", func(t *testing.T) {
		a := newArchive(t)
		h := chainhash.DoubleHashH([]byte("opaque"))
		data := []byte("This is a block")

		require.NoError(t, a.StoreBlock(ctx, h, bytes.NewReader(data)))

		exists, err := a.BlockExists(ctx, h)
		require.NoError(t, err)
		assert.True(t, exists)

		rc, err := a.GetBlock(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, data, readAll(t, rc))
	})

	t.Run("StoreOverwrites", func(t *testing.T) {
		a := newArchive(t)
		h := chainhash.DoubleHashH([]byte("overwrite"))

		require.NoError(t, a.StoreBlock(ctx, h, bytes.NewReader([]byte("This is a block"))))
		require.NoError(t, a.StoreBlock(ctx, h, bytes.NewReader([]byte("This is a new block"))))

		rc, err := a.GetBlock(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, []byte("This is a new block"), readAll(t, rc))
	})

	t.Run("FullRoundTrip", func(t *testing.T) {
		a := newArchive(t)
		blk := testBlock(1, 3)
		h := blk.Hash()
		require.NoError(t, a.StoreBlockFull(ctx, h, blk))

		got, err := a.GetBlockFull(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, blk.Header, got.Header)
		require.Len(t, got.Transactions, len(blk.Transactions))
		for i := range blk.Transactions {
			assert.Equal(t, blk.Transactions[i].TxID(), got.Transactions[i].TxID())
		}
		assert.Equal(t, blk.Bytes(), got.Bytes())
	})

	t.Run("StoreBlockFullNil", func(t *testing.T) {
		a := newArchive(t)
		err := a.StoreBlockFull(ctx, unknownHash(), nil)
		assert.ErrorIs(t, err, block.ErrNilBlock)

		exists, err := a.BlockExists(ctx, unknownHash())
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Metadata", func(t *testing.T) {
		a := newArchive(t)
		h, raw := storeTestBlock(t, a, 2, 4)

		size, err := a.BlockSize(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, int64(len(raw)), size)

		full, err := a.GetBlockFull(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, size, int64(len(full.Bytes())))

		count, err := a.BlockTxCount(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), count)

		hdr, err := a.BlockHeader(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, raw[:block.HeaderSize], hdr.Bytes())
		assert.Equal(t, h, hdr.Hash())
		assert.Equal(t, int32(2), hdr.Version)
	})

	t.Run("GetBytesFromBlock", func(t *testing.T) {
		a := newArchive(t)
		h, raw := storeTestBlock(t, a, 3, 2)
		n := uint64(len(raw))

		tests := []struct {
			name           string
			offset, length uint64
			wantErr        error
		}{
			{"header", 0, block.HeaderSize, nil},
			{"whole block", 0, n, nil},
			{"middle", 81, 20, nil},
			{"last byte", n - 1, 1, nil},
			{"empty at end", n, 0, nil},
			{"one past end", n - 1, 2, ErrOutOfRange},
			{"offset past end", n + 1, 0, ErrOutOfRange},
			{"overflow", ^uint64(0), 2, ErrOutOfRange},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := a.GetBytesFromBlock(ctx, h, tt.offset, tt.length)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, raw[tt.offset:tt.offset+tt.length], got)
			})
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		a := newArchive(t)
		h := chainhash.DoubleHashH([]byte("corrupt"))
		require.NoError(t, a.StoreBlock(ctx, h, bytes.NewReader([]byte("short"))))

		_, err := a.GetBlockFull(ctx, h)
		assert.ErrorIs(t, err, ErrCorrupt)
		_, err = a.BlockHeader(ctx, h)
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = a.BlockTxCount(ctx, h)
		assert.ErrorIs(t, err, ErrCorrupt)

		// A header followed by a varint that declares more bytes than exist.
		h2 := chainhash.DoubleHashH([]byte("bad varint"))
		raw := append(testBlock(9, 0).Header.Bytes(), 0xfe, 0x01)
		require.NoError(t, a.StoreBlock(ctx, h2, bytes.NewReader(raw)))

		_, err = a.BlockTxCount(ctx, h2)
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = a.BlockHeader(ctx, h2)
		assert.NoError(t, err)
	})

	t.Run("FailedStoreLeavesNothing", func(t *testing.T) {
		a := newArchive(t)
		h := chainhash.DoubleHashH([]byte("failed"))
		r := io.MultiReader(bytes.NewReader([]byte("partial")), errReader{})

		err := a.StoreBlock(ctx, h, r)
		assert.ErrorIs(t, err, ErrIO)

		exists, err := a.BlockExists(ctx, h)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("CancelledStore", func(t *testing.T) {
		a := newArchive(t)
		h := chainhash.DoubleHashH([]byte("cancelled"))
		cctx, cancel := context.WithCancel(ctx)
		r := &cancelAfterFirstRead{r: bytes.NewReader(bytes.Repeat([]byte{0xAB}, 1<<16)), cancel: cancel}

		err := a.StoreBlock(cctx, h, r)
		assert.ErrorIs(t, err, context.Canceled)

		exists, err := a.BlockExists(ctx, h)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("CancelledRead", func(t *testing.T) {
		a := newArchive(t)
		h, _ := storeTestBlock(t, a, 4, 1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := a.GetBlock(cctx, h)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = a.BlockSize(cctx, h)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ListBlocks", func(t *testing.T) {
		a := newArchive(t)
		want := map[block.Hash]bool{}
		for seed := uint32(10); seed < 13; seed++ {
			h, _ := storeTestBlock(t, a, seed, 1)
			want[h] = true
		}

		got := map[block.Hash]bool{}
		for h, err := range a.ListBlocks(ctx) {
			require.NoError(t, err)
			assert.False(t, got[h], "duplicate hash %s", h)
			got[h] = true
		}
		assert.Equal(t, want, got)

		// A second walk sees the same set.
		hashes, err := CollectBlocks(ctx, a)
		require.NoError(t, err)
		assert.Len(t, hashes, 3)
	})

	t.Run("ListBlocksEmpty", func(t *testing.T) {
		a := newArchive(t)
		hashes, err := CollectBlocks(ctx, a)
		require.NoError(t, err)
		assert.Empty(t, hashes)
	})

	t.Run("ListBlocksBreak", func(t *testing.T) {
		a := newArchive(t)
		for seed := uint32(20); seed < 25; seed++ {
			storeTestBlock(t, a, seed, 0)
		}
		n := 0
		for _, err := range a.ListBlocks(ctx) {
			require.NoError(t, err)
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
	})

	t.Run("ListBlocksCancelled", func(t *testing.T) {
		a := newArchive(t)
		storeTestBlock(t, a, 30, 0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		var errs []error
		for _, err := range a.ListBlocks(cctx) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], context.Canceled)
	})

	t.Run("Pull", func(t *testing.T) {
		a := newArchive(t)
		h, _ := storeTestBlock(t, a, 40, 0)

		next, stop := Pull(a.ListBlocks(ctx))
		defer stop()

		got, err, ok := next()
		require.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, h, got)

		_, _, ok = next()
		assert.False(t, ok)
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("source failed") }

// cancelAfterFirstRead cancels its context once the first chunk is read.
type cancelAfterFirstRead struct {
	r      io.Reader
	cancel context.CancelFunc
	reads  int
}

func (c *cancelAfterFirstRead) Read(p []byte) (int, error) {
	c.reads++
	if c.reads == 2 {
		c.cancel()
	}
	if len(p) > 1024 {
		p = p[:1024]
	}
	return c.r.Read(p)
}
