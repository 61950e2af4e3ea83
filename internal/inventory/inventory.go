// Package inventory builds the UI-facing views of the live item
// collection: resolved, movability-annotated item lists and storage-unit
// summaries. Views are recomputed on every read and never cached across
// protocol updates.
package inventory

import (
	"fmt"

	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
)

// storageUnitDefIndex is the reserved definition index of storage units.
const storageUnitDefIndex = 1201

// defaultUnitName is shown for storage units without a custom name.
const defaultUnitName = "Storage Unit"

// systemItemIDs are fixed non-movable system items that would otherwise
// clutter the list.
var systemItemIDs = map[string]struct{}{
	"17293822569110896676": {},
	"17293822569102708641": {},
}

// ResolvedItem is the annotated view of one inventory item.
type ResolvedItem struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	MarketHashName string       `json:"market_hash_name"`
	Image          string       `json:"image"`
	Category       string       `json:"category,omitempty"`
	DefIndex       uint32       `json:"def_index"`
	PaintIndex     uint32       `json:"paint_index"`
	Rarity         uint32       `json:"rarity"`
	Quality        uint32       `json:"quality"`
	PaintWear      float64      `json:"paint_wear,omitempty"`
	CustomName     string       `json:"custom_name,omitempty"`
	Stickers       []gc.Sticker `json:"stickers,omitempty"`
	Tradable       bool         `json:"tradable"`
	Movable        bool         `json:"movable"`
}

// StorageUnit is the summary view of one storage-unit item.
type StorageUnit struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ItemCount  uint32 `json:"item_count"`
	CustomName string `json:"custom_name,omitempty"`
}

// View resolves and annotates a single raw item.
func View(it gc.Item, tab *catalog.Table) ResolvedItem {
	res, ok := tab.Resolve(it)

	v := ResolvedItem{
		ID:             it.ID,
		Name:           displayName(it, res, ok),
		MarketHashName: it.MarketHashName,
		DefIndex:       it.DefIndex,
		PaintIndex:     it.PaintIndex,
		Rarity:         it.Rarity,
		Quality:        it.Quality,
		PaintWear:      it.PaintWear,
		CustomName:     it.CustomName,
		Stickers:       it.Stickers,
		Tradable:       it.Tradable,
		Movable:        catalog.Movable(it, res, ok),
	}

	if ok {
		v.Category = string(res.Category)
		v.Image = res.Image

		if v.MarketHashName == "" {
			v.MarketHashName = res.Name
		}
	} else {
		v.Image = it.IconURL
	}

	return v
}

// displayName picks the best available name: catalog entry, market hash
// name, custom name, then a definition-index placeholder.
func displayName(it gc.Item, res catalog.Resolved, ok bool) string {
	switch {
	case ok && res.Name != "":
		return res.Name
	case it.MarketHashName != "":
		return it.MarketHashName
	case it.CustomName != "":
		return it.CustomName
	default:
		return fmt.Sprintf("Item #%d", it.DefIndex)
	}
}

// Snapshot builds the main inventory view, excluding storage units
// themselves, items nested inside a unit, known system items, and free
// reward items.
func Snapshot(items []gc.Item, tab *catalog.Table) []ResolvedItem {
	out := make([]ResolvedItem, 0, len(items))

	for _, it := range items {
		if it.DefIndex == storageUnitDefIndex {
			continue
		}

		if it.CasketID != "" {
			continue
		}

		if _, excluded := systemItemIDs[it.ID]; excluded {
			continue
		}

		if reward, ok := catalog.AttributeUint32(it, catalog.AttrFreeReward); ok && reward == 1 {
			continue
		}

		out = append(out, View(it, tab))
	}

	return out
}

// Units extracts the storage-unit summaries from the live collection.
func Units(items []gc.Item) []StorageUnit {
	var out []StorageUnit

	for _, it := range items {
		if it.DefIndex != storageUnitDefIndex {
			continue
		}

		name := it.CustomName
		if name == "" {
			name = defaultUnitName
		}

		out = append(out, StorageUnit{
			ID:         it.ID,
			Name:       name,
			ItemCount:  it.CasketItemCount,
			CustomName: it.CustomName,
		})
	}

	return out
}
