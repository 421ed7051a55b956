package block

import (
	"io"

	"github.com/bsv-blockchain/go-sdk/util"
)

// MaxVarIntSize is the longest varint encoding (discriminant + uint64).
const MaxVarIntSize = 9

// ReadVarInt reads one varint. Input that ends before the encoding is
// complete yields an error matching io.EOF or io.ErrUnexpectedEOF.
func ReadVarInt(r io.Reader) (uint64, error) {
	var v util.VarInt
	if _, err := v.ReadFrom(r); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// AppendVarInt appends the varint encoding of v to dst.
func AppendVarInt(dst []byte, v uint64) []byte {
	return append(dst, util.VarInt(v).Bytes()...)
}
