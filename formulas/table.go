package formulas

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/ivf-estimator/internal/logger"
)

// Table is the coefficient table shared by every calculation.
// It is loaded from its Source on first use and served from the cache afterwards.
type Table struct {
	source Source
	cache  FormulaCache
	mu     sync.Mutex // serializes loads
}

// NewTable creates a table that caches for the process lifetime
func NewTable(source Source) *Table {
	return NewTableWithCache(source, NewInMemoryFormulaCache(DefaultCacheConfig()))
}

// NewTableWithCache creates a table backed by a custom cache
func NewTableWithCache(source Source, cache FormulaCache) *Table {
	return &Table{
		source: source,
		cache:  cache,
	}
}

// Formulas returns the table rows, loading them on first use.
// Load failures are returned as *DataSourceError and leave the cache empty.
func (t *Table) Formulas(ctx context.Context) ([]Formula, error) {
	if formulas := t.cache.Get(); formulas != nil {
		return formulas, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Another caller may have finished loading while we waited
	if formulas := t.cache.Get(); formulas != nil {
		return formulas, nil
	}

	start := time.Now()
	formulas, err := t.load(ctx)
	if err != nil {
		logger.Error("failed to load formula table", "source", t.source.Name(), "error", err)
		return nil, &DataSourceError{Source: t.source.Name(), Err: err}
	}

	t.cache.Set(formulas)
	logger.Info("formula table loaded",
		"source", t.source.Name(),
		"rows", len(formulas),
		"duration", time.Since(start).String())

	return formulas, nil
}

func (t *Table) load(ctx context.Context) ([]Formula, error) {
	formulas, err := t.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(formulas) == 0 {
		return nil, fmt.Errorf("coefficient table has no formula rows")
	}

	// One row per branch key; a duplicate would make selection depend on row order
	seen := make(map[BranchKey]string, len(formulas))
	for _, f := range formulas {
		if label, dup := seen[f.Key]; dup {
			return nil, fmt.Errorf("formulas %q and %q share branch %s", label, f.Label, f.Key)
		}
		seen[f.Key] = f.Label
	}

	return formulas, nil
}

// Loaded reports whether the rows are currently cached
func (t *Table) Loaded() bool {
	return t.cache.IsValid()
}

// Reset drops the cached rows so the next call reloads from the source
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache.Invalidate()
}
