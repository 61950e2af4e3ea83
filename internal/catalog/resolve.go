package catalog

import (
	"strconv"

	"github.com/caskmate/caskmate/internal/gc"
)

// Category classifies a resolved item.
type Category string

const (
	CategorySkin        Category = "skin"
	CategoryMusicKit    Category = "music_kit"
	CategoryKeychain    Category = "keychain"
	CategoryGraffiti    Category = "graffiti"
	CategoryCrate       Category = "crate"
	CategoryCollectible Category = "collectible"
	CategorySticker     Category = "sticker"
	CategoryHighlight   Category = "highlight"
)

// Resolved is the catalog's view of one raw item. It is derived on every
// read and never persisted.
type Resolved struct {
	Name     string
	Image    string
	Category Category
}

// Resolve classifies a raw item against the catalog. The cascade runs in
// fixed priority order and the first hit wins; a miss on every table
// returns ok == false, never an error.
func (t *Table) Resolve(it gc.Item) (Resolved, bool) {
	defIdx := strconv.FormatUint(uint64(it.DefIndex), 10)

	// 1. Skins: (definition index, paint index) pair.
	if it.PaintIndex > 0 {
		if paints, ok := t.Skins[defIdx]; ok {
			if e, ok := paints[strconv.FormatUint(uint64(it.PaintIndex), 10)]; ok {
				return Resolved{Name: e.Name, Image: e.Image, Category: CategorySkin}, true
			}
		}
	}

	// 2. Music kits: music index from the attribute buffer.
	if musicIdx, ok := AttributeUint32(it, AttrMusicKit); ok && musicIdx > 0 {
		if e, ok := t.MusicKits[strconv.FormatUint(uint64(musicIdx), 10)]; ok {
			return Resolved{Name: e.Name, Image: e.Image, Category: CategoryMusicKit}, true
		}
	}

	// 3. Keychains (charms): same extraction, different slot.
	if keychainIdx, ok := AttributeUint32(it, AttrKeychain); ok && keychainIdx > 0 {
		if e, ok := t.Keychains[strconv.FormatUint(uint64(keychainIdx), 10)]; ok {
			return Resolved{Name: e.Name, Image: e.Image, Category: CategoryKeychain}, true
		}
	}

	// 4. Graffiti: needs a tint attribute (zero counts as present) and a
	// sticker entry. Tinted key first, monochrome fallback.
	if tint, ok := AttributeUint32(it, AttrGraffitiTint); ok && len(it.Stickers) > 0 {
		if stickerID := it.Stickers[0].StickerID; stickerID > 0 {
			sticker := strconv.FormatUint(uint64(stickerID), 10)

			if e, ok := t.Graffiti[sticker+"_"+strconv.FormatUint(uint64(tint), 10)]; ok {
				return Resolved{Name: e.Name, Image: e.Image, Category: CategoryGraffiti}, true
			}

			if e, ok := t.Graffiti[sticker]; ok {
				return Resolved{Name: e.Name, Image: e.Image, Category: CategoryGraffiti}, true
			}
		}
	}

	// 5. Crates, cases, and keys: definition index directly.
	if e, ok := t.Crates[defIdx]; ok {
		return Resolved{Name: e.Name, Image: e.Image, Category: CategoryCrate}, true
	}

	// 6. Collectibles (coins, pins, service medals).
	if e, ok := t.Collectibles[defIdx]; ok {
		return Resolved{Name: e.Name, Image: e.Image, Category: CategoryCollectible}, true
	}

	// 7. Highlights (souvenir charms keyed by definition index).
	if e, ok := t.Highlights[defIdx]; ok {
		return Resolved{Name: e.Name, Image: e.Image, Category: CategoryHighlight}, true
	}

	// 8. Stickers and patches as standalone items.
	if len(it.Stickers) > 0 {
		if stickerID := it.Stickers[0].StickerID; stickerID > 0 {
			if e, ok := t.Stickers[strconv.FormatUint(uint64(stickerID), 10)]; ok {
				return Resolved{Name: e.Name, Image: e.Image, Category: CategorySticker}, true
			}
		}
	}

	return Resolved{}, false
}

// qualitySpecial is the ★ quality flag (knives, gloves).
const qualitySpecial = 3

// originTimedDrop marks promotional timed drops, e.g. the default music
// kit handed out during an event.
const originTimedDrop = 0

// Movable reports whether an item may be moved into or out of a storage
// unit. res/ok are the output of Resolve for the same item.
func Movable(it gc.Item, res Resolved, ok bool) bool {
	// ★ items are always movable regardless of resolution.
	if it.Quality == qualitySpecial {
		return true
	}

	if ok && res.Category == CategoryCollectible {
		return false
	}

	if ok && res.Category == CategoryMusicKit && it.Origin == originTimedDrop {
		return false
	}

	// Unresolved with no paint: a stock/base item.
	if !ok && it.PaintIndex == 0 {
		return false
	}

	return true
}
