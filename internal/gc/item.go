package gc

// Item is a raw inventory record as received from the game coordinator.
// Fields mirror the protocol message; most are optional and zero-valued
// when the coordinator omits them. Item is a dumb carrier — interpretation
// (catalog lookup, movability) lives in the catalog package.
type Item struct {
	ID             string
	DefIndex       uint32
	PaintIndex     uint32
	Quality        uint32
	Origin         uint32
	Rarity         uint32
	PaintWear      float64
	Tradable       bool
	CustomName     string
	MarketHashName string
	IconURL        string

	// CasketID is non-empty when the item is nested inside a storage unit.
	CasketID string

	// CasketItemCount is only meaningful on storage-unit items themselves.
	CasketItemCount uint32

	Stickers   []Sticker
	Attributes []Attribute
}

// Sticker is one sticker slot entry on an item. For graffiti and sticker
// items the first entry carries the identifying sticker id.
type Sticker struct {
	StickerID uint32
	Slot      uint32
	Wear      float64
}

// Attribute is one raw item attribute: a definition index identifying the
// attribute slot and an opaque little-endian value buffer.
type Attribute struct {
	DefIndex uint32
	Value    []byte
}

// Attribute returns the raw attribute with the given definition index,
// or false if the item does not carry it.
func (it Item) Attribute(defIndex uint32) (Attribute, bool) {
	for _, a := range it.Attributes {
		if a.DefIndex == defIndex {
			return a, true
		}
	}

	return Attribute{}, false
}
