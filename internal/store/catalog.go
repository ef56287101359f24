package store

import (
	"context"
	"fmt"
	"sync"
)

// movieCatalog maps movie codes to titles. The remote table is append-only,
// so refresh fetches only rows beyond the last successfully read index and
// merges them without evicting existing entries.
type movieCatalog struct {
	mu      sync.RWMutex
	titles  map[string]string
	lastRow int
}

func newMovieCatalog() *movieCatalog {
	return &movieCatalog{titles: make(map[string]string)}
}

// Lookup returns the title for a code. Safe to call concurrently with an
// in-flight refresh.
func (c *movieCatalog) Lookup(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	title, ok := c.titles[code]
	return title, ok
}

// Len returns the number of cached catalog entries.
func (c *movieCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.titles)
}

// Refresh reads the unread tail of the movies table and merges it in. On
// failure the previous snapshot stays in place.
func (c *movieCatalog) Refresh(ctx context.Context, backing TableStore, table string) error {
	c.mu.RLock()
	start := c.lastRow
	c.mu.RUnlock()

	rows, err := backing.GetRowsSince(ctx, table, start)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog rows from %d: %w", start, err)
	}

	if len(rows) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		if len(row) < 2 || row[0] == "" {
			continue
		}

		c.titles[row[0]] = row[1]
	}

	c.lastRow = start + len(rows)

	return nil
}
