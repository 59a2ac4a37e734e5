// mint-importer loads a scraped mint cache into the store. The cache is a
// JSON array of {asset_id, owner, template_id, mint} entries; rows are
// grouped by template and inserted in chunks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/crptomonkeys/monKey-matching/internal/store"
)

const chunkSize = 100

type cacheEntry struct {
	AssetID    uint64 `json:"asset_id"`
	Owner      string `json:"owner"`
	TemplateID uint64 `json:"template_id"`
	Mint       uint16 `json:"mint"`
}

func main() {
	cachePath := flag.String("cache", "mint.cache.json", "Path to the mint cache JSON file")
	dbPath := flag.String("db", "monkey-matching.db", "Path to the sqlite database")
	flag.Parse()

	if err := run(*cachePath, *dbPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cachePath, dbPath string) error {
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var entries []cacheEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to parse cache: %w", err)
	}

	db, err := store.NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	// Group by template, ordered by asset id within each group.
	groups := map[uint64][]cacheEntry{}
	for _, e := range entries {
		groups[e.TemplateID] = append(groups[e.TemplateID], e)
	}

	templates := make([]uint64, 0, len(groups))
	for id := range groups {
		templates = append(templates, id)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i] < templates[j] })

	total := 0
	for _, templateID := range templates {
		group := groups[templateID]
		sort.Slice(group, func(i, j int) bool { return group[i].AssetID < group[j].AssetID })

		for start := 0; start < len(group); start += chunkSize {
			end := start + chunkSize
			if end > len(group) {
				end = len(group)
			}

			chunk := make([]store.Asset, 0, end-start)
			for _, e := range group[start:end] {
				chunk = append(chunk, store.Asset{
					AssetID:    e.AssetID,
					Owner:      e.Owner,
					TemplateID: e.TemplateID,
					Mint:       e.Mint,
				})
			}

			if err := db.PutAssets(chunk); err != nil {
				return fmt.Errorf("failed to insert chunk for template %d: %w", templateID, err)
			}
			total += len(chunk)
		}

		logrus.Infof("imported template %d (%d assets)", templateID, len(group))
	}

	logrus.Infof("imported %d assets across %d templates", total, len(templates))
	return nil
}
