package importer

import (
	"context"
	"fmt"
	"path/filepath"
)

// SourceConfig names one harvested repository.
type SourceConfig struct {
	Code    string
	Name    string
	BotName string
}

var sourceNames = map[string]string{
	"arxiv":    "arXiv",
	"biorxiv":  "bioRxiv",
	"medrxiv":  "medRxiv",
	"crossref": "Crossref",
}

// SourceConfigFor names a source after its code. Unknown codes keep the
// code as display name.
func SourceConfigFor(code string) SourceConfig {
	name, ok := sourceNames[code]
	if !ok {
		name = code
	}
	return SourceConfig{Code: code, Name: name, BotName: name + " Bot"}
}

// HarvestDir imports the pending batch files of one source from
// <dir>/<code>/, advancing the cursor after each file. It stops at the first
// failing file; committed files are not repeated by the next run.
func (i *Importer) HarvestDir(ctx context.Context, cfg SourceConfig, dir string, defs CategoryDefs) (*Stats, error) {
	src, err := i.OpenSource(ctx, cfg.Code, cfg.Name, cfg.BotName)
	if err != nil {
		return nil, err
	}
	categories, err := MapCategories(ctx, i.tx, i.papers, defs)
	if err != nil {
		return nil, err
	}
	batches, err := PendingBatches(filepath.Join(dir, cfg.Code), src.Cursor)
	if err != nil {
		return nil, err
	}

	total := &Stats{}
	for _, b := range batches {
		records, err := b.Load()
		if err != nil {
			return total, err
		}
		stats, err := i.Import(ctx, src, b.Cursor, records, categories)
		if stats != nil {
			total.Created += stats.Created
			total.Updated += stats.Updated
			total.Skipped += stats.Skipped
			total.Batches += stats.Batches
			total.DOIs = append(total.DOIs, stats.DOIs...)
		}
		if err != nil {
			return total, fmt.Errorf("import %s: %w", b.Path, err)
		}
	}
	return total, nil
}
