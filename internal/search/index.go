// Package search is an in-memory prefix index over known place names.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
)

type doc struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Index answers case-insensitive prefix queries over place names.
type Index struct {
	mu    sync.RWMutex
	bleve bleve.Index
	seen  map[string]struct{}
}

func NewIndex() (*Index, error) {
	key := bleve.NewTextFieldMapping()
	key.Analyzer = keyword.Name
	name := bleve.NewTextFieldMapping()
	name.Index = false
	name.Store = true

	dm := bleve.NewDocumentMapping()
	dm.AddFieldMappingsAt("key", key)
	dm.AddFieldMappingsAt("name", name)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = dm
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create name index: %w", err)
	}
	return &Index{bleve: idx, seen: make(map[string]struct{})}, nil
}

// Add indexes names, ignoring blanks and duplicates.
func (i *Index) Add(names ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	batch := i.bleve.NewBatch()
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if k == "" {
			continue
		}
		if _, ok := i.seen[k]; ok {
			continue
		}
		i.seen[k] = struct{}{}
		if err := batch.Index(k, doc{Key: k, Name: n}); err != nil {
			return fmt.Errorf("index %q: %w", n, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	return i.bleve.Batch(batch)
}

// Size reports how many names are indexed.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.seen)
}

// Prefix returns up to limit names starting with prefix, sorted alphabetically.
func (i *Index) Prefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewPrefixQuery(prefix)
	q.SetField("key")
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"name"}
	req.SortBy([]string{"key"})

	i.mu.RLock()
	res, err := i.bleve.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if name, ok := hit.Fields["name"].(string); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (i *Index) Close() error { return i.bleve.Close() }
