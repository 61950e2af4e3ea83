package inventory

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
)

func attrValue(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)

	return buf
}

func testTable() *catalog.Table {
	return &catalog.Table{
		Skins: map[string]map[string]catalog.Entry{
			"7": {"282": {Name: "AK-47 | Redline", Image: "ak.png"}},
		},
		Collectibles: map[string]catalog.Entry{
			"874": {Name: "Service Medal 2016"},
		},
	}
}

func TestViewResolved(t *testing.T) {
	v := View(gc.Item{ID: "100", DefIndex: 7, PaintIndex: 282, Tradable: true}, testTable())

	assert.Equal(t, "AK-47 | Redline", v.Name)
	assert.Equal(t, "skin", v.Category)
	assert.Equal(t, "ak.png", v.Image)
	assert.True(t, v.Movable)
	assert.True(t, v.Tradable)

	// Catalog name backfills a missing market hash name.
	assert.Equal(t, "AK-47 | Redline", v.MarketHashName)
}

func TestViewNameFallbackChain(t *testing.T) {
	tab := &catalog.Table{}

	t.Run("market hash name", func(t *testing.T) {
		v := View(gc.Item{DefIndex: 9, MarketHashName: "P2000 | Scorpion", CustomName: "mine"}, tab)
		assert.Equal(t, "P2000 | Scorpion", v.Name)
	})

	t.Run("custom name", func(t *testing.T) {
		v := View(gc.Item{DefIndex: 9, CustomName: "mine"}, tab)
		assert.Equal(t, "mine", v.Name)
	})

	t.Run("placeholder", func(t *testing.T) {
		v := View(gc.Item{DefIndex: 9}, tab)
		assert.Equal(t, "Item #9", v.Name)
	})
}

func TestViewUnresolvedKeepsIconURL(t *testing.T) {
	v := View(gc.Item{DefIndex: 9, IconURL: "econ/icon.png"}, &catalog.Table{})
	assert.Equal(t, "econ/icon.png", v.Image)
	assert.Empty(t, v.Category)
}

func TestSnapshotFilters(t *testing.T) {
	tab := testTable()

	items := []gc.Item{
		{ID: "1", DefIndex: 7, PaintIndex: 282},
		// Storage unit itself, an item nested inside it, the two known
		// system items, and a free reward: all excluded.
		{ID: "2", DefIndex: 1201, CasketItemCount: 12},
		{ID: "3", DefIndex: 7, PaintIndex: 282, CasketID: "2"},
		{ID: "17293822569110896676", DefIndex: 9},
		{ID: "17293822569102708641", DefIndex: 9},
		{ID: "6", DefIndex: 9, Attributes: []gc.Attribute{{DefIndex: catalog.AttrFreeReward, Value: attrValue(1)}}},
		// A zero-valued reward attribute does not exclude.
		{ID: "7", DefIndex: 9, Attributes: []gc.Attribute{{DefIndex: catalog.AttrFreeReward, Value: attrValue(0)}}},
	}

	out := Snapshot(items, tab)

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "7", out[1].ID)
}

func TestUnits(t *testing.T) {
	items := []gc.Item{
		{ID: "1", DefIndex: 7},
		{ID: "2", DefIndex: 1201, CustomName: "Knives", CasketItemCount: 40},
		{ID: "3", DefIndex: 1201, CasketItemCount: 0},
	}

	units := Units(items)

	require.Len(t, units, 2)
	assert.Equal(t, "Knives", units[0].Name)
	assert.Equal(t, uint32(40), units[0].ItemCount)

	// Unnamed units display the default name but keep CustomName empty.
	assert.Equal(t, "Storage Unit", units[1].Name)
	assert.Empty(t, units[1].CustomName)
}

func TestSortByName(t *testing.T) {
	items := []ResolvedItem{
		{ID: "3", Name: "awp | Dragon Lore"},
		{ID: "1", Name: "AK-47 | Redline"},
		{ID: "2", Name: "AK-47 | Redline"},
		{ID: "4", Name: "Zeus x27"},
	}

	SortByName(items)

	assert.Equal(t, "AK-47 | Redline", items[0].Name)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "2", items[1].ID)

	// Case-insensitive: lowercase "awp" sorts with the A's, before Zeus.
	assert.Equal(t, "awp | Dragon Lore", items[2].Name)
	assert.Equal(t, "Zeus x27", items[3].Name)
}
