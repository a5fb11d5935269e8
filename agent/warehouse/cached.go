package warehouse

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

const tablesCacheKey = "tables"

// Cached decorates a Warehouse so that table listings and table
// descriptions are served from a SchemaCache when present. Cache failures
// are logged and fall through to the database.
type Cached struct {
	Warehouse
	cache SchemaCache
}

func NewCached(inner Warehouse, cache SchemaCache) *Cached {
	if cache == nil {
		cache = NopCache{}
	}
	return &Cached{Warehouse: inner, cache: cache}
}

func (c *Cached) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	if c.load(ctx, tablesCacheKey, &names) {
		return names, nil
	}
	names, err := c.Warehouse.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tablesCacheKey, names)
	return names, nil
}

func (c *Cached) DescribeTable(ctx context.Context, name string) (Table, error) {
	key := "table:" + strings.TrimSpace(name)
	var t Table
	if c.load(ctx, key, &t) {
		return t, nil
	}
	t, err := c.Warehouse.DescribeTable(ctx, name)
	if err != nil {
		return Table{}, err
	}
	c.store(ctx, key, t)
	return t, nil
}

func (c *Cached) load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("schema cache get failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("schema cache entry is corrupt")
		return false
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(raw)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("schema cache set failed")
	}
}
