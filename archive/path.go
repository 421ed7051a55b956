package archive

import (
	"path/filepath"
	"strings"

	"github.com/bitfsorg/blockarchive-go/block"
)

// BlockFileExt is the extension of every stored block file.
const BlockFileExt = ".bin"

// hashHexLen is the length of a hash rendered as hex.
const hashHexLen = block.HashSize * 2

// ShardPath locates a block below the archive root:
// {root}/{Dir1}/{Dir2}/{Filename}.
type ShardPath struct {
	Dir1     string
	Dir2     string
	Filename string
}

// Resolve maps a block hash to its shard path.
//
// Dir1 is the last two characters of the display hex and Dir2 the two
// before them; the leading characters are mostly zeros from proof of work.
// 256*256 leaf directories hold about 30 files each at two million blocks.
func Resolve(hash block.Hash) ShardPath {
	s := hash.String()
	return ShardPath{
		Dir1:     s[hashHexLen-2:],
		Dir2:     s[hashHexLen-4 : hashHexLen-2],
		Filename: s + BlockFileExt,
	}
}

// Dir returns the leaf directory under root.
func (p ShardPath) Dir(root string) string {
	return filepath.Join(root, p.Dir1, p.Dir2)
}

// Path returns the full file path under root.
func (p ShardPath) Path(root string) string {
	return filepath.Join(root, p.Dir1, p.Dir2, p.Filename)
}

// ParseFilename recovers the block hash from a block file name. It reports
// false for anything that is not {64 lowercase hex}.bin.
func ParseFilename(name string) (block.Hash, bool) {
	stem, ok := strings.CutSuffix(name, BlockFileExt)
	if !ok || len(stem) != hashHexLen || !isLowerHex(stem) {
		return block.Hash{}, false
	}
	h, err := block.NewHashFromHex(stem)
	if err != nil {
		return block.Hash{}, false
	}
	return h, true
}

// isShardDirName reports whether name can be a Dir1 or Dir2 component.
func isShardDirName(name string) bool {
	return len(name) == 2 && isLowerHex(name)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
