// Package stmtcache memoizes prepared statements keyed by a normalized
// structural signature, so query shapes that depend on runtime-variable
// argument counts (membership-list width, update-field sets) are compiled
// once per shape and reused for the lifetime of the storage handle.
package stmtcache

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialect selects the bind-placeholder style of the underlying driver.
type Dialect string

const (
	// Postgres uses numbered $n placeholders.
	Postgres Dialect = "postgres"
	// SQLite uses positional ? placeholders.
	SQLite Dialect = "sqlite"
)

// Placeholder returns the bind placeholder for 1-based position i.
func (d Dialect) Placeholder(i int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// Placeholders returns n comma-separated placeholders starting at
// 1-based position start.
func (d Dialect) Placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = d.Placeholder(start + i)
	}
	return strings.Join(parts, ",")
}

// Cache holds prepared statements for the lifetime of the process-wide
// storage handle. Entries are never evicted; the key domain (id counts and
// sorted field sets) is small in practice. Reads vastly outnumber writes
// after warm-up, so an RWMutex over an append-only-by-key map suffices.
type Cache struct {
	db      *sql.DB
	dialect Dialect

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// New creates a Cache over the given connection pool.
func New(db *sql.DB, dialect Dialect) *Cache {
	return &Cache{
		db:      db,
		dialect: dialect,
		stmts:   map[string]*sql.Stmt{},
	}
}

// Dialect returns the cache's placeholder dialect.
func (c *Cache) Dialect() Dialect {
	return c.dialect
}

// Get returns the prepared statement for key, preparing it with the SQL
// produced by build on first use. An equal key always yields the same
// statement pointer. Preparation errors are returned to the caller;
// nothing is cached on failure.
func (c *Cache) Get(ctx context.Context, key string, build func(d Dialect) string) (*sql.Stmt, error) {
	c.mu.RLock()
	stmt, ok := c.stmts[key]
	c.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if stmt, ok := c.stmts[key]; ok {
		return stmt, nil
	}

	stmt, err := c.db.PrepareContext(ctx, build(c.dialect))
	if err != nil {
		return nil, fmt.Errorf("preparing statement %q: %w", key, err)
	}
	c.stmts[key] = stmt
	return stmt, nil
}

// NormalizeFields sorts a field list lexicographically and drops duplicates.
// The normalized order is both the cache-key order and the bind order of the
// generated statement, so compiled SQL and bound arguments always agree.
func NormalizeFields(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FieldsKey builds a cache key for a normalized field set.
func FieldsKey(prefix string, normalized []string) string {
	return prefix + ":" + strings.Join(normalized, ",")
}

// CountKey builds a cache key for a membership-list width.
func CountKey(prefix string, n int) string {
	return fmt.Sprintf("%s:%d", prefix, n)
}
