// Package catalog loads the static item catalog and classifies raw
// game-coordinator item records into human-meaningful entries. Resolution
// is a pure lookup over the loaded tables — it never fails on malformed
// input, it only misses.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Entry is one catalog record: the display name and image for an item.
type Entry struct {
	Name           string `json:"name"`
	Image          string `json:"image"`
	MarketHashName string `json:"market_hash_name,omitempty"`
}

// Table holds the full static catalog. Skins are keyed by definition
// index then paint index; graffiti by "{stickerID}_{tint}" for tinted
// entries and "{stickerID}" for monochrome ones; everything else by its
// single identifying index.
type Table struct {
	Skins        map[string]map[string]Entry `json:"skins"`
	Crates       map[string]Entry            `json:"crates"`
	Collectibles map[string]Entry            `json:"collectibles"`
	Stickers     map[string]Entry            `json:"stickers"`
	Graffiti     map[string]Entry            `json:"graffiti"`
	MusicKits    map[string]Entry            `json:"music_kits"`
	Keychains    map[string]Entry            `json:"keychains"`
	Highlights   map[string]Entry            `json:"highlights"`
}

// Load reads and decodes a catalog JSON file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("catalog: decoding %s: %w", path, err)
	}

	return &t, nil
}

// LogSummary logs per-table entry counts, mirroring what the catalog
// build pipeline reports, so a truncated data file is visible at startup.
func (t *Table) LogSummary(logger *slog.Logger) {
	skins := 0
	for _, paints := range t.Skins {
		skins += len(paints)
	}

	logger.Info("catalog loaded",
		slog.Int("skins", skins),
		slog.Int("crates", len(t.Crates)),
		slog.Int("collectibles", len(t.Collectibles)),
		slog.Int("stickers", len(t.Stickers)),
		slog.Int("graffiti", len(t.Graffiti)),
		slog.Int("music_kits", len(t.MusicKits)),
		slog.Int("keychains", len(t.Keychains)),
		slog.Int("highlights", len(t.Highlights)),
	)
}
