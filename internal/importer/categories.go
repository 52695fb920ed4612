package importer

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
)

// CategoryDef names the local subfield a remote category files under.
type CategoryDef struct {
	Field string `yaml:"field"`
	Name  string `yaml:"name"`
}

// CategoryDefs maps remote category codes to subfields. Several codes may
// share one subfield.
type CategoryDefs map[string]CategoryDef

// CategoryFile is the YAML document listing the definitions of each source.
//
//	sources:
//	  arxiv:
//	    astro-ph.GA: {field: astronomy, name: Astrophysics of Galaxies}
type CategoryFile struct {
	Sources map[string]CategoryDefs `yaml:"sources"`
}

// LoadCategories reads a category definition file.
func LoadCategories(path string) (*CategoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category definitions: %w", err)
	}
	return ParseCategories(data)
}

func ParseCategories(data []byte) (*CategoryFile, error) {
	var f CategoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse category definitions: %w", err)
	}
	for source, defs := range f.Sources {
		for code, def := range defs {
			if def.Field == "" || def.Name == "" {
				return nil, fmt.Errorf("category %s of %s: field and name are required", code, source)
			}
		}
	}
	return &f, nil
}

// For returns the definitions of source, or nil.
func (f *CategoryFile) For(source string) CategoryDefs {
	if f == nil {
		return nil
	}
	return f.Sources[source]
}

// SubfieldStore is the part of the paper store category mapping needs.
type SubfieldStore interface {
	LockSubfields(ctx context.Context) error
	ListSubfields(ctx context.Context) (map[string]*paper.Subfield, error)
	CreateSubfields(ctx context.Context, subfields []paper.Subfield) error
}

// MapCategories creates the subfields defs names that do not exist yet and
// returns the subfield of each category code. Existing subfields are matched
// by name only; their field is left as stored.
func MapCategories(ctx context.Context, tx TxRunner, store SubfieldStore, defs CategoryDefs) (map[string]id.SubfieldID, error) {
	out := make(map[string]id.SubfieldID, len(defs))
	if len(defs) == 0 {
		return out, nil
	}
	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.LockSubfields(ctx); err != nil {
			return err
		}
		existing, err := store.ListSubfields(ctx)
		if err != nil {
			return err
		}
		missing := missingSubfields(defs, existing)
		if len(missing) > 0 {
			if err := store.CreateSubfields(ctx, missing); err != nil {
				return err
			}
			if existing, err = store.ListSubfields(ctx); err != nil {
				return err
			}
		}
		for code, def := range defs {
			sf, ok := existing[def.Name]
			if !ok {
				return fmt.Errorf("subfield %q missing after creation", def.Name)
			}
			out[code] = sf.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("map categories: %w", err)
	}
	return out, nil
}

// missingSubfields lists each subfield name of defs absent from existing once,
// sorted by name.
func missingSubfields(defs CategoryDefs, existing map[string]*paper.Subfield) []paper.Subfield {
	seen := make(map[string]bool)
	var out []paper.Subfield
	for _, def := range defs {
		if _, ok := existing[def.Name]; ok || seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		out = append(out, paper.Subfield{Field: def.Field, Name: def.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
