package catalog

import (
	"encoding/binary"

	"github.com/caskmate/caskmate/internal/gc"
)

// Attribute slots carrying derived sub-indices. The value buffer of each
// is a protocol struct whose first four bytes are the index we need.
const (
	AttrMusicKit     = 166
	AttrFreeReward   = 277
	AttrGraffitiTint = 233
	AttrKeychain     = 299
)

// AttributeUint32 scans the item's raw attribute list for the given slot
// and reinterprets the first four bytes of its value buffer as a
// little-endian unsigned integer. The second return distinguishes a
// missing or short attribute from a present-but-zero value.
func AttributeUint32(it gc.Item, defIndex uint32) (uint32, bool) {
	attr, ok := it.Attribute(defIndex)
	if !ok || len(attr.Value) < 4 {
		return 0, false
	}

	return binary.LittleEndian.Uint32(attr.Value[:4]), true
}
