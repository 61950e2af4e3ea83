package inventory

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortByName orders items for display using a case-insensitive collation
// so "AK-47" and "awp" interleave the way a human expects. Ties break on
// id to keep the order stable across refreshes.
func SortByName(items []ResolvedItem) {
	c := collate.New(language.English, collate.IgnoreCase)

	sort.SliceStable(items, func(i, j int) bool {
		if cmp := c.CompareString(items[i].Name, items[j].Name); cmp != 0 {
			return cmp < 0
		}

		return items[i].ID < items[j].ID
	})
}
